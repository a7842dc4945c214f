/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package remote

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/roster"
	"github.com/Seednode/drawcast/session"
)

var ErrQueueFull = errors.New("send queue full")

const sendQueue = 256

// gameSession is one player's connection to a running game. Outgoing
// frames go through a single writer so they reach the display in the
// order they were queued.
type gameSession struct {
	conn     *websocket.Conn
	handler  session.Handler
	playerID string
	logf     func(format string, args ...any)

	mu       sync.Mutex
	roster   roster.Snapshot
	pending  map[string]func(error)
	lost     error
	send     chan protocol.Frame
	disposed atomic.Bool
}

func newGameSession(conn *websocket.Conn, h session.Handler, info protocol.Frame, logf func(string, ...any)) *gameSession {
	gs := &gameSession{
		conn:     conn,
		handler:  h,
		playerID: info.PlayerID,
		logf:     logf,
		pending:  make(map[string]func(error)),
		send:     make(chan protocol.Frame, sendQueue),
	}
	if info.Roster != nil {
		gs.roster = info.Roster.Clone()
	}

	go gs.writePump()
	go gs.readPump()

	return gs
}

func (g *gameSession) PlayerID() string {
	return g.playerID
}

func (g *gameSession) Roster() roster.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.roster.Clone()
}

func (g *gameSession) Disposed() bool {
	return g.disposed.Load()
}

func (g *gameSession) Send(msg protocol.Message, done func(error)) {
	env, err := protocol.Wrap(msg)
	if err != nil {
		finish(done, err)

		return
	}

	g.enqueue(protocol.Frame{Type: protocol.FrameGame, Game: env}, done)
}

func (g *gameSession) SetPlayerState(state roster.PlayerState, name string, done func(error)) {
	g.enqueue(protocol.Frame{Type: protocol.FramePlayerState, State: state, Name: name}, done)
}

func finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

func (g *gameSession) enqueue(f protocol.Frame, done func(error)) {
	f.RequestID = uuid.NewString()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disposed.Load() {
		go finish(done, session.ErrNotConnected)

		return
	}
	if g.lost != nil {
		go finish(done, g.lost)

		return
	}

	select {
	case g.send <- f:
		g.pending[f.RequestID] = done
	default:
		go finish(done, ErrQueueFull)
	}
}

func (g *gameSession) writePump() {
	defer g.conn.Close()

	for f := range g.send {
		if err := g.conn.WriteJSON(f); err != nil {
			g.logf("REMOTE: Writing %s: %v", f.Type, err)

			return
		}
	}

	_ = g.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (g *gameSession) readPump() {
	var cause error

	defer func() {
		lost := fmt.Errorf("%w: %w", session.ErrConnectionLost, cause)

		g.mu.Lock()
		pending := g.pending
		g.pending = make(map[string]func(error))
		g.lost = lost
		g.mu.Unlock()

		for _, done := range pending {
			finish(done, lost)
		}

		if !g.disposed.Load() {
			g.handler.HandleDisconnect(cause)
		}
	}()

	for {
		var f protocol.Frame
		if err := g.conn.ReadJSON(&f); err != nil {
			cause = err

			return
		}

		switch f.Type {
		case protocol.FrameAck, protocol.FrameError:
			g.acknowledge(f)
		case protocol.FrameRoster:
			if f.Roster == nil {
				continue
			}

			g.mu.Lock()
			g.roster = f.Roster.Clone()
			g.mu.Unlock()

			g.handler.HandleRoster(f.Roster.Clone())
		case protocol.FrameGame:
			if f.Game == nil {
				continue
			}

			msg, err := f.Game.Open()
			if err != nil {
				g.logf("REMOTE: Dropping message from %s: %v", f.From, err)

				continue
			}

			g.handler.HandleMessage(f.From, msg)
		case protocol.FrameClosed:
			cause = fmt.Errorf("%w: %s", ErrAppStopped, f.Reason)

			return
		}
	}
}

func (g *gameSession) acknowledge(f protocol.Frame) {
	g.mu.Lock()
	done, ok := g.pending[f.RequestID]
	delete(g.pending, f.RequestID)
	g.mu.Unlock()

	if !ok {
		if f.Type == protocol.FrameError {
			g.logf("REMOTE: Display reported: %s", f.Error)
		}

		return
	}

	if f.Type == protocol.FrameError || !f.OK() {
		finish(done, fmt.Errorf("%w: %s", session.ErrRemoteRejected, f.Error))

		return
	}

	finish(done, nil)
}

// Dispose hangs up. Requests still waiting for an ack fail with
// ErrConnectionLost; the handler hears nothing further.
func (g *gameSession) Dispose() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disposed.Swap(true) {
		return
	}

	close(g.send)
}
