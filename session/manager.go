/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session pairs the controller with a display: connect, launch
// the game application, obtain a game session, and tear all of it down
// again on any failure.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Seednode/drawcast/loop"
	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/roster"
)

type State int

const (
	Idle State = iota
	DeviceSelected
	ApiConnecting
	RemoteAppLaunching
	GameHandshaking
	Ready
	Disconnected
)

var stateNames = [...]string{
	"idle",
	"device selected",
	"connecting",
	"launching",
	"handshaking",
	"ready",
	"disconnected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}

	return stateNames[s]
}

// Event is emitted on every transition and every roster snapshot. It is
// a copy; holding on to it never aliases manager state.
type Event struct {
	State     State
	Device    *Device
	SessionID string
	PlayerID  string
	Roster    roster.Snapshot
	Err       error
}

type Options struct {
	AppID    string
	Timeout  time.Duration
	Reporter ErrorReporter
	Logf     func(format string, args ...any)

	// Go runs a blocking collaborator call off the loop. Defaults to
	// starting a goroutine.
	Go func(func())
}

type subscriber struct {
	id int
	fn func(Event)
}

// Manager owns the pairing state machine. Every method must be called on
// the loop it was constructed with.
type Manager struct {
	opts      Options
	connector Connector
	loop      loop.Poster

	// gen is bumped on every teardown; results tagged with an older
	// generation belong to an abandoned attempt.
	gen uint64

	state     State
	device    *Device
	client    Client
	game      GameSession
	sessionID string
	playerID  string
	roster    roster.Snapshot
	lastErr   error

	subs    []subscriber
	nextSub int
	onGame  func(from string, msg protocol.Message)
}

func NewManager(connector Connector, l loop.Poster, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Reporter == nil {
		opts.Reporter = discardReporter{}
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}
	if opts.Go == nil {
		opts.Go = func(f func()) { go f() }
	}

	return &Manager{
		opts:      opts,
		connector: connector,
		loop:      l,
	}
}

func (m *Manager) State() State {
	return m.state
}

func (m *Manager) SelectedDevice() *Device {
	if m.device == nil {
		return nil
	}
	d := *m.device

	return &d
}

func (m *Manager) SessionID() string {
	return m.sessionID
}

func (m *Manager) PlayerID() string {
	if !m.IsReady() {
		return ""
	}

	return m.playerID
}

func (m *Manager) LastError() error {
	return m.lastErr
}

func (m *Manager) IsReady() bool {
	return m.state == Ready && m.game != nil && !m.game.Disposed()
}

func (m *Manager) CurrentRoster() roster.Snapshot {
	if !m.IsReady() {
		return roster.Snapshot{}
	}

	return m.roster.Clone()
}

// Subscribe registers fn for every Event and returns a function that
// removes it again.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// SetGameHandler routes incoming game messages from the current session.
func (m *Manager) SetGameHandler(fn func(from string, msg protocol.Message)) {
	m.onGame = fn
}

func (m *Manager) emit() {
	ev := Event{
		State:     m.state,
		Device:    m.SelectedDevice(),
		SessionID: m.sessionID,
		PlayerID:  m.playerID,
		Roster:    m.roster.Clone(),
		Err:       m.lastErr,
	}

	for _, s := range append([]subscriber(nil), m.subs...) {
		s.fn(ev)
	}
}

func (m *Manager) setState(s State) {
	if m.state != s {
		m.opts.Logf("SESSION: %s -> %s", m.state, s)
	}
	m.state = s
	m.emit()
}

// request runs a blocking call off the loop with the configured timeout.
func (m *Manager) request(f func(ctx context.Context)) {
	timeout := m.opts.Timeout

	m.opts.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		f(ctx)
	})
}

// SelectDevice abandons whatever session exists and starts pairing with
// d. A nil device just returns to Idle.
func (m *Manager) SelectDevice(d *Device) {
	m.teardown()
	m.lastErr = nil

	if d == nil {
		m.device = nil
		m.setState(Idle)

		return
	}

	dev := *d
	m.device = &dev
	m.setState(DeviceSelected)
	m.connect(dev)
}

func (m *Manager) connect(dev Device) {
	gen := m.gen
	m.setState(ApiConnecting)

	onClosed := func(err error) {
		m.loop.Post(func() { m.onConnectionClosed(gen, err) })
	}

	m.request(func(ctx context.Context) {
		c, err := m.connector.Connect(ctx, dev, onClosed)
		m.loop.Post(func() { m.onConnected(gen, c, err) })
	})
}

func (m *Manager) onConnected(gen uint64, c Client, err error) {
	if gen != m.gen {
		m.opts.Logf("SESSION: Discarding stale connection result")
		if c != nil {
			_ = c.Close()
		}

		return
	}

	if err != nil {
		m.fail(fmt.Errorf("%w: connecting to %s: %w", ErrConnectionFailed, m.device, err))

		return
	}

	m.client = c
	m.setState(RemoteAppLaunching)

	appID := m.opts.AppID
	m.request(func(ctx context.Context) {
		id, err := c.Launch(ctx, appID)
		m.loop.Post(func() { m.onLaunched(gen, id, err) })
	})
}

func (m *Manager) onLaunched(gen uint64, sessionID string, err error) {
	if gen != m.gen {
		m.opts.Logf("SESSION: Discarding stale launch result for %q", sessionID)

		return
	}

	if err != nil {
		m.fail(fmt.Errorf("%w: launching %q: %w", ErrConnectionFailed, m.opts.AppID, err))

		return
	}

	m.sessionID = sessionID
	m.setState(GameHandshaking)

	c := m.client
	h := &handler{m: m, gen: gen}
	m.request(func(ctx context.Context) {
		gs, err := c.Join(ctx, sessionID, h)
		m.loop.Post(func() { m.onJoined(gen, gs, err) })
	})
}

func (m *Manager) onJoined(gen uint64, gs GameSession, err error) {
	if gen != m.gen {
		m.opts.Logf("SESSION: Discarding stale game session")
		if gs != nil {
			gs.Dispose()
		}

		return
	}

	if err != nil {
		m.fail(fmt.Errorf("%w: joining session %s: %w", ErrConnectionFailed, m.sessionID, err))

		return
	}

	m.game = gs
	m.playerID = gs.PlayerID()
	m.roster = gs.Roster()
	m.setState(Ready)

	_ = m.RequestPlayerState(roster.Available, "", nil)
}

func (m *Manager) onConnectionClosed(gen uint64, err error) {
	if gen != m.gen || m.state == Idle || m.state == Disconnected {
		return
	}

	if err == nil {
		err = ErrConnectionLost
	}

	m.fail(fmt.Errorf("%w: %w", ErrConnectionFailed, err))
}

// fail collapses any step's failure into the same path: tear down, forget
// the device, land in Disconnected and tell the user.
func (m *Manager) fail(err error) {
	var retry func()
	if m.device != nil {
		dev := *m.device
		retry = func() {
			m.loop.Post(func() { m.SelectDevice(&dev) })
		}
	}

	m.opts.Logf("SESSION: %v", err)

	m.teardown()
	m.device = nil
	m.lastErr = err
	m.setState(Disconnected)

	m.opts.Reporter.ReportError(err, retry)
}

// teardown releases the game session and connection. It is safe to call
// repeatedly and from any state.
func (m *Manager) teardown() {
	m.gen++

	if m.game != nil {
		m.game.Dispose()
		m.game = nil
	}

	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.opts.Logf("SESSION: Closing connection: %v", err)
		}
		m.client = nil
	}

	m.sessionID = ""
	m.playerID = ""
	m.roster = roster.Snapshot{}
}

// Disconnect leaves the session, or stops the remote application
// entirely when stopRemoteApp is set, and ends in Disconnected.
func (m *Manager) Disconnect(stopRemoteApp bool) {
	if m.state == Idle {
		return
	}

	c, gs, id := m.client, m.game, m.sessionID
	m.client, m.game = nil, nil
	m.teardown()

	if c != nil && id != "" {
		logf := m.opts.Logf
		m.request(func(ctx context.Context) {
			var err error
			if stopRemoteApp {
				err = c.Stop(ctx, id)
			} else {
				err = c.Leave(ctx)
			}
			if err != nil {
				logf("SESSION: Leaving session %s: %v", id, err)
			}

			if gs != nil {
				gs.Dispose()
			}
			_ = c.Close()
		})
	} else {
		if gs != nil {
			gs.Dispose()
		}
		if c != nil {
			_ = c.Close()
		}
	}

	m.device = nil
	m.setState(Disconnected)
}

// SendGameMessage queues msg for the display. It fails immediately with
// ErrNotConnected when there is no ready session; otherwise done, if set,
// receives the display's verdict on the loop. Nothing is retried.
func (m *Manager) SendGameMessage(msg protocol.Message, done func(error)) error {
	if !m.IsReady() {
		return ErrNotConnected
	}

	gen := m.gen
	m.game.Send(msg, func(err error) {
		m.loop.Post(func() { m.onSent(gen, err, done) })
	})

	return nil
}

// RequestPlayerState asks the display to move the local player to state.
// The roster only changes once the display confirms it.
func (m *Manager) RequestPlayerState(state roster.PlayerState, name string, done func(error)) error {
	if !m.IsReady() {
		return ErrNotConnected
	}

	gen := m.gen
	m.game.SetPlayerState(state, name, func(err error) {
		m.loop.Post(func() { m.onSent(gen, err, done) })
	})

	return nil
}

func (m *Manager) onSent(gen uint64, err error, done func(error)) {
	if err != nil && gen == m.gen && errors.Is(err, ErrRemoteRejected) {
		m.opts.Logf("SESSION: %v", err)

		m.lastErr = err
		m.Disconnect(false)
		m.opts.Reporter.ReportError(err, nil)
	}

	if done != nil {
		done(err)
	}
}

func (m *Manager) onRoster(gen uint64, s roster.Snapshot) {
	if gen != m.gen || m.state != Ready {
		return
	}

	m.roster = s.Clone()
	m.emit()
}

func (m *Manager) onMessage(gen uint64, from string, msg protocol.Message) {
	if gen != m.gen || m.state != Ready || m.onGame == nil {
		return
	}

	m.onGame(from, msg)
}

// handler forwards game session callbacks onto the loop, tagged with the
// generation they were registered under.
type handler struct {
	m   *Manager
	gen uint64
}

func (h *handler) HandleMessage(from string, msg protocol.Message) {
	h.m.loop.Post(func() { h.m.onMessage(h.gen, from, msg) })
}

func (h *handler) HandleRoster(s roster.Snapshot) {
	h.m.loop.Post(func() { h.m.onRoster(h.gen, s) })
}

func (h *handler) HandleDisconnect(err error) {
	h.m.loop.Post(func() { h.m.onConnectionClosed(h.gen, err) })
}
