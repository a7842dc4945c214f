/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Drawcast display
//
// Controllers open /control to launch the game application and
// /sessions/:id/ws to take part in it. Each running application is a Hub:
// it owns the roster and the lobby, relays game messages between players
// and keeps its own copy of the drawing grid for the display page.
//
// Features:
// - One running session per application id; launching again joins it
// - Player ids and session ids are random uuids assigned by the display
// - Promoting a Ready player to Playing closes the lobby and starts a match
// - The last Turn with words is cached and resent to players who ask for it
// - Inbound frames are rate limited per connection
// - A session stops when its last player leaves or after --session-timeout idle

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"

	"github.com/Seednode/drawcast/grid"
	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/roster"
)

var (
	ErrUnknownApp     = errors.New("unknown application")
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrNameRequired   = errors.New("a name is required")
	ErrNameTaken      = errors.New("name already taken")
	ErrNotReady       = errors.New("player is not ready")
	ErrMatchRunning   = errors.New("match already in progress")
	ErrNotPlaying     = errors.New("player is not in the match")
	ErrUnsupported    = errors.New("unsupported frame")
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	limiter  *rate.Limiter
}

func newClient(cfg *Config, conn *websocket.Conn, playerID string, queue int) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan any, queue),
		playerID: playerID,
		limiter:  rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateBurst),
	}
}

type inbound struct {
	client *Client
	frame  protocol.Frame
}

// cachedTurn is the most recent Turn that carried words.
type cachedTurn struct {
	from   string
	number int
	game   *protocol.Envelope
}

type Hub struct {
	id      string
	appID   string
	clients map[*Client]bool
	players []roster.Participant

	register chan *Client
	unreg    chan *Client
	frames   chan inbound
	quit     chan struct{}

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
	lobbyOpen  bool
	turn       *cachedTurn
	artist     string
	grid       *grid.Grid
	stopped    bool

	// onEmpty runs on the hub goroutine once the last player has left.
	onEmpty func(*Hub)
}

func newHub(id, appID string, gridSize int, onEmpty func(*Hub)) *Hub {
	now := time.Now()

	return &Hub{
		id:         id,
		appID:      appID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		frames:     make(chan inbound),
		quit:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
		lobbyOpen:  true,
		grid:       grid.New(gridSize),
		onEmpty:    onEmpty,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(cfg, c)

		case c := <-h.unreg:
			if h.handleUnregister(cfg, c) && h.onEmpty != nil {
				h.onEmpty(h)
			}

		case in := <-h.frames:
			h.handleFrame(cfg, in.client, in.frame)

		case <-h.quit:
			return
		}
	}
}

func (h *Hub) handleRegister(cfg *Config, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		close(c.send)

		return
	}

	h.lastActive = time.Now()
	h.clients[c] = true
	h.players = append(h.players, roster.Participant{ID: c.playerID, State: roster.Unknown})

	snap := h.snapshotLocked()

	// session_info goes first, so the controller learns its own id before
	// it sees itself in a roster.
	h.deliverLocked(c, protocol.Frame{
		Type:      protocol.FrameSessionInfo,
		SessionID: h.id,
		PlayerID:  c.playerID,
		Roster:    &snap,
	})
	h.broadcastRosterLocked()

	logf(cfg, "GAMES: Player %s joined session %s", c.playerID, h.id)
}

// handleUnregister reports whether the hub has just become empty.
func (h *Hub) handleUnregister(cfg *Config, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	i := h.indexLocked(c.playerID)
	if i < 0 {
		return false
	}

	before := h.playingLocked()
	h.players = slices.Delete(h.players, i, i+1)
	h.settleLobbyLocked(before)
	h.broadcastRosterLocked()

	logf(cfg, "GAMES: Player %s left session %s", c.playerID, h.id)

	return len(h.players) == 0 && !h.stopped
}

func (h *Hub) handleFrame(cfg *Config, c *Client, f protocol.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}

	h.lastActive = time.Now()

	var err error

	switch f.Type {
	case protocol.FramePlayerState:
		err = h.setStateLocked(c.playerID, f.State, f.Name)
		if err == nil {
			defer h.broadcastRosterLocked()
		}
	case protocol.FrameGame:
		err = h.relayLocked(c, f.Game)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupported, f.Type)
	}

	if err != nil {
		logf(cfg, "GAMES: Rejected %s from %s in session %s: %v", f.Type, c.playerID, h.id, err)
	}

	// The ack precedes the roster it caused.
	h.deliverLocked(c, protocol.Ack(f.RequestID, err))
}

func (h *Hub) indexLocked(playerID string) int {
	return slices.IndexFunc(h.players, func(p roster.Participant) bool {
		return p.ID == playerID
	})
}

func (h *Hub) setStateLocked(playerID string, state roster.PlayerState, name string) error {
	i := h.indexLocked(playerID)
	if i < 0 {
		return ErrUnknownPlayer
	}

	p := &h.players[i]

	switch state {
	case roster.Available:
		before := h.playingLocked()
		p.State = roster.Available
		h.settleLobbyLocked(before)

	case roster.Ready:
		name = strings.TrimSpace(name)
		if name == "" {
			name = p.Name
		}
		if name == "" {
			return ErrNameRequired
		}
		for j, other := range h.players {
			if j != i && strings.EqualFold(other.Name, name) {
				return fmt.Errorf("%w: %s", ErrNameTaken, name)
			}
		}

		p.Name = name
		if p.State == roster.Playing {
			return nil
		}
		p.State = roster.Ready

	case roster.Playing:
		if p.State == roster.Playing {
			return nil
		}
		if p.State != roster.Ready {
			return ErrNotReady
		}
		if !h.lobbyOpen {
			return ErrMatchRunning
		}

		for j := range h.players {
			if h.players[j].State == roster.Ready {
				h.players[j].State = roster.Playing
			}
		}

		h.lobbyOpen = false
		h.turn = nil
		h.artist = ""
		h.grid.Clear()

	default:
		return fmt.Errorf("invalid player state %s", state)
	}

	return nil
}

func (h *Hub) playingLocked() int {
	n := 0
	for _, p := range h.players {
		if p.State == roster.Playing {
			n++
		}
	}

	return n
}

// settleLobbyLocked reopens the lobby after a departure leaves nobody to
// play against. Whoever is still Playing goes back to Ready so the next
// start picks them up along with any newcomers. A match started alone
// keeps running until its player leaves.
func (h *Hub) settleLobbyLocked(before int) {
	if h.lobbyOpen {
		return
	}

	after := h.playingLocked()
	if after > 0 && (before < 2 || after > 1) {
		return
	}

	for i := range h.players {
		if h.players[i].State == roster.Playing {
			h.players[i].State = roster.Ready
		}
	}

	h.lobbyOpen = true
	h.turn = nil
	h.artist = ""
	h.grid.Clear()
}

func (h *Hub) relayLocked(c *Client, env *protocol.Envelope) error {
	if env == nil {
		return fmt.Errorf("%w: game frame without a message", ErrUnsupported)
	}

	msg, err := env.Open()
	if err != nil {
		return err
	}

	if i := h.indexLocked(c.playerID); i < 0 || h.players[i].State != roster.Playing {
		return ErrNotPlaying
	}

	switch m := msg.(type) {
	case protocol.Turn:
		if m.HasWords() {
			h.turn = &cachedTurn{from: c.playerID, number: m.Number, game: env}
			h.artist = c.playerID
		}
	case protocol.Player:
		if h.turn != nil {
			h.deliverLocked(c, protocol.Frame{Type: protocol.FrameGame, From: h.turn.from, Game: h.turn.game})
		}

		return nil
	case protocol.Clear:
		h.grid.Clear()
	case protocol.Paint:
		h.grid.Paint(m.X, m.Y, m.Color)
	case protocol.Artist:
		h.artist = m.Participant
	}

	frame := protocol.Frame{Type: protocol.FrameGame, From: c.playerID, Game: env}
	for other := range h.clients {
		if other != c {
			h.deliverLocked(other, frame)
		}
	}

	return nil
}

// deliverLocked queues v for c, dropping clients that cannot keep up.
func (h *Hub) deliverLocked(c *Client, v any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- v:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) snapshotLocked() roster.Snapshot {
	return roster.Snapshot{
		Participants: slices.Clone(h.players),
		LobbyOpen:    h.lobbyOpen,
	}
}

func (h *Hub) broadcastRosterLocked() {
	snap := h.snapshotLocked()
	frame := protocol.Frame{Type: protocol.FrameRoster, Roster: &snap}

	for c := range h.clients {
		h.deliverLocked(c, frame)
	}
}

// stop tells every player the application has stopped and hangs up.
func (h *Hub) stop(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true

	closed := protocol.Frame{Type: protocol.FrameClosed, SessionID: h.id, Reason: reason}
	for c := range h.clients {
		select {
		case c.send <- closed:
		default:
		}
		close(c.send)
		delete(h.clients, c)
	}

	close(h.quit)
}

type hubState struct {
	SessionID  string          `json:"session_id"`
	AppID      string          `json:"app_id"`
	Roster     roster.Snapshot `json:"roster"`
	Turn       int             `json:"turn"`
	Artist     string          `json:"artist,omitempty"`
	Grid       [][]int         `json:"grid"`
	CreatedAt  time.Time       `json:"created_at"`
	LastActive time.Time       `json:"last_active"`
}

func (h *Hub) state() hubState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := hubState{
		SessionID:  h.id,
		AppID:      h.appID,
		Roster:     h.snapshotLocked(),
		Artist:     h.artist,
		CreatedAt:  h.createdAt,
		LastActive: h.lastActive,
	}
	if h.turn != nil {
		s.Turn = h.turn.number
	}

	// []uint8 rows would encode as base64.
	for _, row := range h.grid.Snapshot() {
		cells := make([]int, len(row))
		for x, c := range row {
			cells[x] = int(c)
		}
		s.Grid = append(s.Grid, cells)
	}

	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// AppManager holds the running applications, keyed by session id, and the
// control connections that get told when one stops.
type AppManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	running     map[string]string // app id -> session id
	controls    map[*Client]bool
	idleTimeout time.Duration
}

func newAppManager(idleTimeout time.Duration) *AppManager {
	return &AppManager{
		hubs:        make(map[string]*Hub),
		running:     make(map[string]string),
		controls:    make(map[*Client]bool),
		idleTimeout: idleTimeout,
	}
}

// launch starts appID, or returns the session it is already running as.
func (am *AppManager) launch(cfg *Config, appID string) (string, error) {
	if appID != cfg.appID {
		return "", fmt.Errorf("%w: %q", ErrUnknownApp, appID)
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	if id, ok := am.running[appID]; ok {
		return id, nil
	}

	id := uuid.NewString()
	hub := newHub(id, appID, cfg.gridSize, func(h *Hub) {
		_ = am.stop(cfg, h.id, "last player left")
	})
	am.hubs[id] = hub
	am.running[appID] = id

	go hub.run(cfg)

	logf(cfg, "GAMES: Launched %s as session %s", appID, id)

	return id, nil
}

func (am *AppManager) getHub(id string) (*Hub, bool) {
	am.mu.Lock()
	defer am.mu.Unlock()

	hub, ok := am.hubs[id]

	return hub, ok
}

func (am *AppManager) list() []*Hub {
	am.mu.Lock()
	hubs := make([]*Hub, 0, len(am.hubs))
	for _, hub := range am.hubs {
		hubs = append(hubs, hub)
	}
	am.mu.Unlock()

	slices.SortFunc(hubs, func(a, b *Hub) int {
		return a.createdAt.Compare(b.createdAt)
	})

	return hubs
}

func (am *AppManager) stop(cfg *Config, id, reason string) error {
	am.mu.Lock()

	hub, ok := am.hubs[id]
	if !ok {
		am.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	delete(am.hubs, id)
	if am.running[hub.appID] == id {
		delete(am.running, hub.appID)
	}

	closed := protocol.Frame{Type: protocol.FrameClosed, SessionID: id, Reason: reason}
	for c := range am.controls {
		select {
		case c.send <- closed:
		default:
		}
	}

	am.mu.Unlock()

	hub.stop(reason)

	logf(cfg, "GAMES: Stopped session %s (%s)", id, reason)

	return nil
}

func (am *AppManager) stopAll(cfg *Config, reason string) {
	for _, hub := range am.list() {
		_ = am.stop(cfg, hub.id, reason)
	}
}

// reaperLoop periodically stops sessions that have been idle longer than
// idleTimeout. It returns at once if idleTimeout is below the minimum.
func (am *AppManager) reaperLoop(ctx context.Context, cfg *Config) {
	if am.idleTimeout < minSessionTimeout {
		return
	}

	ticker := time.NewTicker(am.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-am.idleTimeout)

		for _, hub := range am.list() {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				_ = am.stop(cfg, hub.id, "idle timeout")
			}
		}
	}
}

func (am *AppManager) addControl(c *Client) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.controls[c] = true
}

func (am *AppManager) removeControl(c *Client) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, ok := am.controls[c]; ok {
		delete(am.controls, c)
		close(c.send)
	}
}

func (am *AppManager) reply(c *Client, f protocol.Frame) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, ok := am.controls[c]; !ok {
		return
	}

	select {
	case c.send <- f:
	default:
	}
}

func (am *AppManager) handleControl(cfg *Config, f protocol.Frame) protocol.Frame {
	switch f.Type {
	case protocol.FrameLaunch:
		id, err := am.launch(cfg, f.AppID)
		if err != nil {
			return protocol.Ack(f.RequestID, err)
		}

		return protocol.Frame{Type: protocol.FrameLaunched, RequestID: f.RequestID, SessionID: id}
	case protocol.FrameStop:
		return protocol.Ack(f.RequestID, am.stop(cfg, f.SessionID, "stopped by controller"))
	case protocol.FrameLeave:
		// The player itself leaves when its game connection closes.
		return protocol.Ack(f.RequestID, nil)
	default:
		return protocol.Ack(f.RequestID, fmt.Errorf("%w: %q", ErrUnsupported, f.Type))
	}
}

func serveControl(cfg *Config, am *AppManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: Control upgrade from %s failed: %v", realIP(r), err)

			return
		}

		c := newClient(cfg, conn, "", 16)
		am.addControl(c)

		logf(cfg, "SERVE: Control connection from %s", realIP(r))

		go c.writePump()

		defer func() {
			am.removeControl(c)
			_ = c.conn.Close()
		}()

		for {
			var f protocol.Frame
			if err := c.conn.ReadJSON(&f); err != nil {
				return
			}

			if err := c.limiter.Wait(r.Context()); err != nil {
				return
			}

			am.reply(c, am.handleControl(cfg, f))
		}
	}
}

func serveSession(cfg *Config, am *AppManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub, ok := am.getHub(ps.ByName("id"))
		if !ok {
			http.Error(w, ErrUnknownSession.Error(), http.StatusNotFound)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: Session upgrade from %s failed: %v", realIP(r), err)

			return
		}

		client := newClient(cfg, conn, uuid.NewString(), 256)

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()

			return
		}

		go client.writePump()
		client.readPump(r.Context(), hub)
	}
}

func (c *Client) readPump(ctx context.Context, h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	for {
		var f protocol.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		select {
		case h.frames <- inbound{client: c, frame: f}:
		case <-h.quit:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
