/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package loop

import (
	"time"
)

// Manual is a loop and scheduler that only advances when told to, for
// driving state machines step by step in tests.
type Manual struct {
	tasks  []func()
	timers []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (m *Manual) Post(f func()) {
	m.tasks = append(m.tasks, f)
}

// Drain runs queued tasks, including any they queue, until none remain.
func (m *Manual) Drain() int {
	n := 0
	for len(m.tasks) > 0 {
		f := m.tasks[0]
		m.tasks = m.tasks[1:]
		f()
		n++
	}

	return n
}

func (m *Manual) Pending() int {
	return len(m.tasks)
}

func (m *Manual) AfterFunc(d time.Duration, f func()) func() bool {
	t := &manualTimer{d: d, f: f}
	m.timers = append(m.timers, t)

	return func() bool {
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true

		return true
	}
}

// Expire posts every live timer's function onto the queue without running
// it, as if the timers went off while the loop was busy. It returns how
// many expired.
func (m *Manual) Expire() int {
	live := m.timers
	m.timers = nil

	n := 0
	for _, t := range live {
		if t.stopped {
			continue
		}
		t.fired = true
		m.Post(t.f)
		n++
	}

	return n
}

// Fire expires every live timer and drains the queue. It returns how many
// fired.
func (m *Manual) Fire() int {
	n := m.Expire()
	m.Drain()

	return n
}

// Armed counts timers that have neither fired nor been stopped.
func (m *Manual) Armed() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}

	return n
}
