/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package turn runs the drawing game on top of a ready session: who
// draws, which words are on offer, the guess countdown and the shared
// canvas.
package turn

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/Seednode/drawcast/grid"
	"github.com/Seednode/drawcast/loop"
	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/roster"
	"github.com/Seednode/drawcast/session"
)

const (
	DefaultWordCount    = 10
	DefaultGuessTicks   = 30
	DefaultTickInterval = time.Second
)

// Sender delivers game messages to the other participants.
type Sender interface {
	SendGameMessage(msg protocol.Message, done func(error)) error
}

type Options struct {
	WordCount    int
	GuessTicks   int
	TickInterval time.Duration
	GridSize     int
	Words        []string
	Rand         *rand.Rand

	Notify func(Event)
	Logf   func(format string, args ...any)
}

// Coordinator owns the match. Like the session manager, it must only be
// used from the loop.
type Coordinator struct {
	opts   Options
	sender Sender
	sched  loop.Scheduler
	view   *roster.View
	grid   *grid.Grid

	local   string
	ready   bool
	playing int

	match Match
	// ended holds a finished match on screen until the local player
	// leaves the playing state.
	ended bool

	timerGen  uint64
	stopTimer func() bool
}

func New(sender Sender, view *roster.View, sched loop.Scheduler, opts Options) *Coordinator {
	if opts.WordCount <= 0 {
		opts.WordCount = DefaultWordCount
	}
	if opts.GuessTicks <= 0 {
		opts.GuessTicks = DefaultGuessTicks
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if len(opts.Words) == 0 {
		opts.Words = DefaultWords()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Notify == nil {
		opts.Notify = func(Event) {}
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	return &Coordinator{
		opts:   opts,
		sender: sender,
		sched:  sched,
		view:   view,
		grid:   grid.New(opts.GridSize),
	}
}

func (c *Coordinator) Match() Match {
	return c.match.clone()
}

func (c *Coordinator) Grid() [][]uint8 {
	return c.grid.Snapshot()
}

func (c *Coordinator) GridSize() int {
	return c.grid.Size()
}

func (c *Coordinator) LocalID() string {
	return c.local
}

func (c *Coordinator) IsArtist() bool {
	return c.match.Phase == ArtistTurn
}

func (c *Coordinator) emit(ev Event) {
	ev.Match = c.match.clone()
	c.opts.Notify(ev)
}

func (c *Coordinator) changed() {
	c.emit(Event{Kind: MatchChanged})
}

func (c *Coordinator) send(msg protocol.Message) {
	err := c.sender.SendGameMessage(msg, func(err error) {
		if err != nil {
			c.opts.Logf("TURN: Sending %s: %v", msg.Type(), err)
		}
	})
	if err != nil {
		c.opts.Logf("TURN: Sending %s: %v", msg.Type(), err)
	}
}

// HandleSession feeds every session manager event into the match: roster
// snapshots decide when a match starts and ends, and leaving Ready ends it.
func (c *Coordinator) HandleSession(ev session.Event) {
	if ev.State != session.Ready {
		if c.ready {
			c.opts.Logf("TURN: Session is %s, ending match", ev.State)
		}
		c.ready = false
		c.view.Reset()
		c.endMatch()
		c.ended = false
		c.playing = 0

		return
	}

	c.ready = true
	c.local = ev.PlayerID
	c.view.Apply(ev.Roster)
	c.rosterChanged()
}

func (c *Coordinator) active() bool {
	switch c.match.Phase {
	case NotStarted, MatchEnded:
		return false
	}

	return true
}

func (c *Coordinator) rosterChanged() {
	order := c.view.TurnOrder()
	prev := c.playing
	c.playing = len(order)

	localPlaying := c.view.PlayerState(c.local) == roster.Playing

	if !c.active() {
		if !localPlaying {
			c.ended = false
			return
		}
		if !c.ended {
			c.startMatch(order)
		}

		return
	}

	switch {
	case !localPlaying:
		c.opts.Logf("TURN: Left the match")
		c.endMatch()
		c.ended = false

		return
	case prev >= 2 && len(order) <= 1:
		c.opts.Logf("TURN: Nobody left to play against")
		c.endMatch()

		return
	case slices.Equal(order, c.match.Order):
		return
	}

	c.match.Order = order

	if !slices.Contains(order, c.match.Artist) {
		next := c.match.Turn + 1
		c.opts.Logf("TURN: Artist %s left during turn %d", c.match.Artist, c.match.Turn)

		if ArtistFor(order, next) == c.local {
			c.beginTurn(next)

			return
		}
	}

	c.changed()
}

func (c *Coordinator) startMatch(order []string) {
	c.opts.Logf("TURN: Starting match with %d players", len(order))

	c.match = Match{
		Order:   order,
		Correct: -1,
	}
	c.grid.Clear()
	c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})

	if ArtistFor(order, 0) == c.local {
		c.beginTurn(0)

		return
	}

	c.awaitTurn(0)
}

// beginTurn makes the local player the artist for turn n: pick the words,
// announce them, and wipe the canvas everywhere.
func (c *Coordinator) beginTurn(n int) {
	c.cancelTimer()

	words, correct := pickWords(c.opts.Rand, c.opts.Words, c.opts.WordCount)

	c.match.Phase = TurnStarting
	c.match.Turn = n
	c.match.Artist = c.local
	c.match.Words = words
	c.match.Correct = correct
	c.match.Answered = nil
	c.match.LocalGuessed = false
	c.match.LocalGuess = 0
	c.match.Remaining = 0

	c.opts.Logf("TURN: Drawing turn %d", n)

	c.send(protocol.Turn{Number: n, Words: words, Correct: correct})

	c.grid.Clear()
	c.send(protocol.Clear{Turn: n})
	c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})

	c.send(protocol.Artist{Turn: n, Participant: c.local})

	c.match.Phase = ArtistTurn
	c.changed()
}

// awaitTurn makes the local player a guesser for turn n that has yet to
// see the words, and asks the display for whatever turn it has cached.
func (c *Coordinator) awaitTurn(n int) {
	c.cancelTimer()

	c.match.Phase = GuesserTurn
	c.match.Turn = n
	c.match.Artist = ArtistFor(c.match.Order, n)
	c.match.Words = nil
	c.match.Correct = -1
	c.match.Answered = nil
	c.match.LocalGuessed = false
	c.match.LocalGuess = 0
	c.match.Remaining = 0

	c.send(protocol.Player{Participant: c.local})
	c.changed()
}

func (c *Coordinator) endMatch() {
	if !c.active() {
		return
	}

	c.cancelTimer()
	c.grid.Clear()

	c.match.Phase = MatchEnded
	c.ended = true

	c.opts.Logf("TURN: Match ended after turn %d", c.match.Turn)

	c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})
	c.changed()
}

// HandleMessage applies a game message from another participant. Messages
// for an earlier turn are dropped and reported as ErrStaleMessage.
func (c *Coordinator) HandleMessage(from string, msg protocol.Message) error {
	if !c.active() {
		return nil
	}

	if n, ok := protocol.TurnOf(msg); ok && n < c.match.Turn {
		c.opts.Logf("TURN: Dropping %s for turn %d during turn %d", msg.Type(), n, c.match.Turn)

		return fmt.Errorf("%w: %s for turn %d, now %d", ErrStaleMessage, msg.Type(), n, c.match.Turn)
	}

	switch m := msg.(type) {
	case protocol.Turn:
		c.onTurn(from, m)
	case protocol.Clear:
		if c.match.Phase == ArtistTurn {
			return nil
		}
		c.grid.Clear()
		c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})
	case protocol.Paint:
		if c.match.Phase == ArtistTurn {
			return nil
		}
		if c.grid.Paint(m.X, m.Y, m.Color) {
			c.emit(Event{Kind: CellPainted, Cell: grid.Cell{X: m.X, Y: m.Y, Color: m.Color}})
		}
	case protocol.Guess:
		c.onGuess(m)
	case protocol.Artist:
		if m.Turn == c.match.Turn && m.Participant != c.match.Artist {
			c.match.Artist = m.Participant
			c.changed()
		}
	}

	return nil
}

func (c *Coordinator) onTurn(from string, t protocol.Turn) {
	if !t.HasWords() {
		c.onHandOff(t.Number)

		return
	}

	if t.Number == c.match.Turn && len(c.match.Words) > 0 {
		return
	}

	if t.Number > c.match.Turn {
		c.grid.Clear()
		c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})
	}

	c.cancelTimer()

	c.match.Phase = GuesserTurn
	c.match.Turn = t.Number
	c.match.Artist = from
	if from == "" {
		c.match.Artist = ArtistFor(c.match.Order, t.Number)
	}
	c.match.Words = slices.Clone(t.Words)
	c.match.Correct = t.Correct
	c.match.Answered = nil
	c.match.LocalGuessed = false
	c.match.LocalGuess = 0

	c.opts.Logf("TURN: Guessing turn %d drawn by %s", t.Number, c.match.Artist)

	c.startTimer()
	c.changed()
}

// onHandOff handles the word-less turn message a finished artist sends:
// whoever draws next picks the words, everyone else waits for them.
func (c *Coordinator) onHandOff(n int) {
	mine := ArtistFor(c.match.Order, n) == c.local

	if n == c.match.Turn && (c.match.Phase == ArtistTurn || len(c.match.Words) > 0 || !mine) {
		return
	}

	if mine {
		c.beginTurn(n)

		return
	}

	c.grid.Clear()
	c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})
	c.awaitTurn(n)
}

func (c *Coordinator) onGuess(g protocol.Guess) {
	if g.Turn != c.match.Turn || g.Participant == "" {
		return
	}
	if slices.Contains(c.match.Answered, g.Participant) {
		return
	}

	c.match.Answered = append(c.match.Answered, g.Participant)

	pg := PeerGuess{
		Participant: g.Participant,
		Choice:      g.Choice,
		TimedOut:    g.Choice == protocol.TimedOut,
	}
	if len(c.match.Words) > 0 && g.Choice >= 0 && g.Choice < len(c.match.Words) {
		pg.Known = true
		pg.Word = c.match.Words[g.Choice]
		pg.Correct = g.Choice == c.match.Correct
	}

	c.emit(Event{Kind: PeerGuessed, PeerGuess: pg})
}

// Paint colours one cell of the canvas and shares it. Painting outside the
// canvas, or with the colour a cell already has, does nothing.
func (c *Coordinator) Paint(x, y int, color uint8) error {
	if c.match.Phase != ArtistTurn {
		return ErrNotArtist
	}

	if !c.grid.Paint(x, y, color) {
		return nil
	}

	c.send(protocol.Paint{Turn: c.match.Turn, X: x, Y: y, Color: color})
	c.emit(Event{Kind: CellPainted, Cell: grid.Cell{X: x, Y: y, Color: color}})

	return nil
}

func (c *Coordinator) Clear() error {
	if c.match.Phase != ArtistTurn {
		return ErrNotArtist
	}

	c.grid.Clear()
	c.send(protocol.Clear{Turn: c.match.Turn})
	c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})

	return nil
}

// EndTurn finishes the local player's drawing turn and moves the match on
// to the next artist.
func (c *Coordinator) EndTurn() error {
	if c.match.Phase != ArtistTurn {
		return ErrNotArtist
	}

	c.match.Phase = TurnEnding
	next := c.match.Turn + 1

	if ArtistFor(c.match.Order, next) == c.local {
		c.beginTurn(next)

		return nil
	}

	c.opts.Logf("TURN: Handing turn %d to %s", next, ArtistFor(c.match.Order, next))

	c.send(protocol.Turn{Number: next, Correct: -1})

	c.grid.Clear()
	c.emit(Event{Kind: GridCleared, Grid: c.grid.Snapshot()})
	c.awaitTurn(next)

	return nil
}

// SubmitGuess records the local player's one guess for this turn.
func (c *Coordinator) SubmitGuess(choice int) error {
	switch {
	case c.match.Phase != GuesserTurn || len(c.match.Words) == 0:
		return ErrNoActiveTurn
	case c.match.LocalGuessed:
		return ErrAlreadyGuessed
	case choice < 0 || choice >= len(c.match.Words):
		return fmt.Errorf("%w: %d of %d", ErrChoiceOutOfRange, choice, len(c.match.Words))
	}

	c.guess(choice)

	return nil
}

func (c *Coordinator) guess(choice int) {
	c.cancelTimer()

	c.match.LocalGuessed = true
	c.match.LocalGuess = choice

	c.send(protocol.Guess{Turn: c.match.Turn, Participant: c.local, Choice: choice})

	fb := Feedback{
		Choice:   choice,
		TimedOut: choice == protocol.TimedOut,
	}
	if c.match.Correct >= 0 && c.match.Correct < len(c.match.Words) {
		fb.CorrectWord = c.match.Words[c.match.Correct]
	}
	if !fb.TimedOut {
		fb.Word = c.match.Words[choice]
		fb.Correct = choice == c.match.Correct
	}

	c.emit(Event{Kind: GuessResult, Feedback: fb})
	c.changed()
}

func (c *Coordinator) startTimer() {
	c.cancelTimer()

	c.match.Remaining = c.opts.GuessTicks
	c.schedule(c.timerGen)
}

func (c *Coordinator) schedule(gen uint64) {
	c.stopTimer = c.sched.AfterFunc(c.opts.TickInterval, func() {
		c.tick(gen)
	})
}

func (c *Coordinator) tick(gen uint64) {
	if gen != c.timerGen || c.match.Phase != GuesserTurn || c.match.LocalGuessed {
		return
	}

	c.match.Remaining--
	if c.match.Remaining <= 0 {
		c.match.Remaining = 0
		c.opts.Logf("TURN: Ran out of time on turn %d", c.match.Turn)
		c.guess(protocol.TimedOut)

		return
	}

	c.schedule(gen)
	c.changed()
}

// cancelTimer invalidates any tick already in flight as well as the
// pending one.
func (c *Coordinator) cancelTimer() {
	c.timerGen++

	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}
