/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package loop provides the single goroutine on which all controller
// state is mutated. Anything asynchronous (network results, timer ticks)
// is posted here rather than touching state directly.
package loop

import (
	"context"
	"time"
)

// Poster queues work onto the loop.
type Poster interface {
	Post(func())
}

// Scheduler runs f on the loop after d. The returned stop function
// cancels the call if it has not been posted yet.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type Loop struct {
	tasks chan func()
	done  chan struct{}
}

func New(buffer int) *Loop {
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Post queues f. After Run has returned, f is dropped.
func (l *Loop) Post(f func()) {
	select {
	case l.tasks <- f:
	case <-l.done:
	}
}

// Run drains tasks in order until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.tasks:
			f()
		}
	}
}

// Call runs f on the loop and waits for it to finish.
func (l *Loop) Call(f func()) {
	finished := make(chan struct{})

	l.Post(func() {
		defer close(finished)
		f()
	})

	select {
	case <-finished:
	case <-l.done:
	}
}

func (l *Loop) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, func() {
		l.Post(f)
	})

	return t.Stop
}
