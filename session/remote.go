/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"context"

	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/roster"
)

// Device is a display found by discovery.
type Device struct {
	ID   string
	Name string
	Addr string
}

func (d Device) String() string {
	if d.Name != "" {
		return d.Name
	}

	return d.Addr
}

// Connector opens the control connection to a display. onClosed is
// called at most once, from any goroutine, if the connection drops or the
// display closes the launched application.
type Connector interface {
	Connect(ctx context.Context, device Device, onClosed func(error)) (Client, error)
}

// Client is an open control connection. Its blocking calls are never
// made from the loop.
type Client interface {
	Launch(ctx context.Context, appID string) (sessionID string, err error)
	Join(ctx context.Context, sessionID string, h Handler) (GameSession, error)
	Stop(ctx context.Context, sessionID string) error
	Leave(ctx context.Context) error
	Close() error
}

// Handler receives everything a game session delivers. Calls may come
// from any goroutine.
type Handler interface {
	HandleMessage(from string, msg protocol.Message)
	HandleRoster(s roster.Snapshot)
	HandleDisconnect(err error)
}

// GameSession is the message channel to the running application. Send
// and SetPlayerState enqueue in call order and return at once; done is
// called exactly once, from any goroutine, with nil or an error wrapping
// ErrRemoteRejected.
type GameSession interface {
	PlayerID() string
	Roster() roster.Snapshot
	Send(msg protocol.Message, done func(error))
	SetPlayerState(state roster.PlayerState, name string, done func(error))
	Dispose()
	Disposed() bool
}
