/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package remote speaks to a display over websockets: a control
// connection for launching and stopping the game, and one game connection
// per joined session.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/session"
)

var (
	ErrAppStopped = errors.New("application stopped on display")
	ErrClosed     = errors.New("connection closed")
)

type Options struct {
	// Scheme is "ws" or "wss".
	Scheme string
	// Prefix is prepended to every path, for displays behind a reverse proxy.
	Prefix string
	// Retries is how many extra dial attempts are made before giving up.
	Retries uint64
	Logf    func(format string, args ...any)
}

// Connector dials displays. It implements session.Connector.
type Connector struct {
	opts   Options
	dialer *websocket.Dialer
}

func NewConnector(opts Options) *Connector {
	if opts.Scheme == "" {
		opts.Scheme = "ws"
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	return &Connector{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (c *Connector) url(addr, path string) string {
	u := url.URL{
		Scheme: c.opts.Scheme,
		Host:   addr,
		Path:   c.opts.Prefix + path,
	}

	return u.String()
}

// dial retries with exponential backoff until ctx expires or the retry
// budget runs out.
func (c *Connector) dial(ctx context.Context, target string) (*websocket.Conn, error) {
	var conn *websocket.Conn

	op := func() error {
		var err error
		conn, _, err = c.dialer.DialContext(ctx, target, nil)

		return err
	}

	notify := func(err error, wait time.Duration) {
		c.opts.Logf("REMOTE: Dialing %s failed, retrying in %s: %v", target, wait.Round(time.Millisecond), err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.opts.Retries), ctx), notify)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func (c *Connector) Connect(ctx context.Context, device session.Device, onClosed func(error)) (session.Client, error) {
	conn, err := c.dial(ctx, c.url(device.Addr, "/control"))
	if err != nil {
		return nil, err
	}

	cl := &client{
		connector: c,
		device:    device,
		conn:      conn,
		onClosed:  onClosed,
		pending:   make(map[string]chan protocol.Frame),
		done:      make(chan struct{}),
	}
	go cl.readPump()

	c.opts.Logf("REMOTE: Connected to %s", device)

	return cl, nil
}

type client struct {
	connector *Connector
	device    session.Device
	conn      *websocket.Conn
	onClosed  func(error)

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan protocol.Frame
	sessionID string
	closing   bool

	closeOnce  sync.Once
	notifyOnce sync.Once
	done       chan struct{}
}

func (c *client) notifyClosed(err error) {
	c.notifyOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed(err)
		}
	})
}

func (c *client) readPump() {
	defer close(c.done)

	for {
		var f protocol.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()

			if !closing {
				c.notifyClosed(fmt.Errorf("%w: %w", session.ErrConnectionLost, err))
			}

			return
		}

		if f.Type == protocol.FrameClosed {
			c.mu.Lock()
			ours := f.SessionID == c.sessionID
			c.mu.Unlock()

			if ours {
				c.notifyClosed(fmt.Errorf("%w: %s", ErrAppStopped, f.Reason))
			}

			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[f.RequestID]
		delete(c.pending, f.RequestID)
		c.mu.Unlock()

		if ok {
			ch <- f
		}
	}
}

func (c *client) write(f protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(f)
}

// request sends f and waits for the reply carrying its request id.
func (c *client) request(ctx context.Context, f protocol.Frame) (protocol.Frame, error) {
	f.RequestID = uuid.NewString()
	ch := make(chan protocol.Frame, 1)

	c.mu.Lock()
	c.pending[f.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return protocol.Frame{}, err
	}

	select {
	case reply := <-ch:
		if reply.Type == protocol.FrameError || (reply.Type == protocol.FrameAck && !reply.OK()) {
			return reply, fmt.Errorf("%w: %s", session.ErrRemoteRejected, reply.Error)
		}

		return reply, nil
	case <-c.done:
		return protocol.Frame{}, ErrClosed
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

func (c *client) Launch(ctx context.Context, appID string) (string, error) {
	reply, err := c.request(ctx, protocol.Frame{Type: protocol.FrameLaunch, AppID: appID})
	if err != nil {
		return "", err
	}

	if reply.SessionID == "" {
		return "", fmt.Errorf("%w: launch reply without session", session.ErrRemoteRejected)
	}

	c.mu.Lock()
	c.sessionID = reply.SessionID
	c.mu.Unlock()

	return reply.SessionID, nil
}

func (c *client) Stop(ctx context.Context, sessionID string) error {
	_, err := c.request(ctx, protocol.Frame{Type: protocol.FrameStop, SessionID: sessionID})

	return err
}

func (c *client) Leave(ctx context.Context) error {
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()

	_, err := c.request(ctx, protocol.Frame{Type: protocol.FrameLeave, SessionID: id})

	return err
}

func (c *client) Join(ctx context.Context, sessionID string, h session.Handler) (session.GameSession, error) {
	conn, err := c.connector.dial(ctx, c.connector.url(c.device.Addr, "/sessions/"+url.PathEscape(sessionID)+"/ws"))
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var info protocol.Frame
	if err := conn.ReadJSON(&info); err != nil {
		_ = conn.Close()

		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	if info.Type != protocol.FrameSessionInfo || info.PlayerID == "" {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: expected %s, got %s %s", session.ErrRemoteRejected, protocol.FrameSessionInfo, info.Type, info.Error)
	}

	gs := newGameSession(conn, h, info, c.connector.opts.Logf)

	c.connector.opts.Logf("REMOTE: Joined session %s as %s", sessionID, gs.PlayerID())

	return gs, nil
}

// Close hangs up without notifying onClosed.
func (c *client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})

	return err
}
