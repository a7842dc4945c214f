/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package turn

import (
	"maps"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/drawcast/loop"
	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/roster"
	"github.com/Seednode/drawcast/session"
)

type delivery struct {
	from string
	msg  protocol.Message
}

// bus relays messages between players the way a display does: everything
// goes to everyone but the sender, and a Player message gets the last turn
// resent to whoever asked.
type bus struct {
	players map[string]*player
	queue   []delivery
	cached  *delivery
}

func newBus() *bus {
	return &bus{players: make(map[string]*player)}
}

type player struct {
	id     string
	bus    *bus
	sched  *loop.Manual
	coord  *Coordinator
	sent   []protocol.Message
	events []Event
}

func (p *player) SendGameMessage(msg protocol.Message, done func(error)) error {
	p.sent = append(p.sent, msg)
	p.bus.queue = append(p.bus.queue, delivery{from: p.id, msg: msg})
	if done != nil {
		done(nil)
	}

	return nil
}

func (b *bus) add(t *testing.T, id string, opts Options) *player {
	t.Helper()

	p := &player{id: id, bus: b, sched: &loop.Manual{}}
	opts.Notify = func(ev Event) { p.events = append(p.events, ev) }
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(len(b.players)), 7))
	}
	p.coord = New(p, roster.NewView(), p.sched, opts)
	b.players[id] = p

	return p
}

func (b *bus) inject(from string, msg protocol.Message) {
	b.queue = append(b.queue, delivery{from: from, msg: msg})
}

func (b *bus) flush() {
	for len(b.queue) > 0 {
		d := b.queue[0]
		b.queue = b.queue[1:]

		switch d.msg.(type) {
		case protocol.Player:
			if b.cached != nil {
				if p, ok := b.players[d.from]; ok {
					_ = p.coord.HandleMessage(b.cached.from, b.cached.msg)
				}
			}

			continue
		case protocol.Turn:
			b.cached = &d
		}

		for _, id := range slices.Sorted(maps.Keys(b.players)) {
			if id != d.from {
				_ = b.players[id].coord.HandleMessage(d.from, d.msg)
			}
		}
	}
}

// seat hands every player the same roster, as the session manager would.
func (b *bus) seat(s roster.Snapshot, ids ...string) {
	for _, id := range ids {
		b.players[id].coord.HandleSession(session.Event{
			State:    session.Ready,
			PlayerID: id,
			Roster:   s,
		})
	}
	b.flush()
}

func playing(ids ...string) roster.Snapshot {
	s := roster.Snapshot{}
	for _, id := range ids {
		s.Participants = append(s.Participants, roster.Participant{ID: id, Name: id, State: roster.Playing})
	}

	return s
}

func (p *player) sentOf(t protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range p.sent {
		if m.Type() == t {
			out = append(out, m)
		}
	}

	return out
}

func (p *player) eventsOf(kind EventKind) []Event {
	var out []Event
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}

	return out
}

func TestArtistFor(t *testing.T) {
	order := []string{"a", "b", "c"}

	for k, want := range []string{"a", "b", "c", "a", "b", "c", "a"} {
		assert.Equal(t, want, ArtistFor(order, k))
		assert.Equal(t, ArtistFor(order, k), ArtistFor(slices.Clone(order), k))
	}

	assert.Empty(t, ArtistFor(nil, 3))
	assert.Empty(t, ArtistFor(order, -1))
}

func TestTurnOrder_IsSortedRoster(t *testing.T) {
	b := newBus()
	p := b.add(t, "m", Options{})

	b.seat(playing("z", "m", "a"), "m")

	assert.Equal(t, []string{"a", "m", "z"}, p.coord.Match().Order)
	assert.Equal(t, "a", p.coord.Match().Artist)
}

func TestScenario_CorrectGuessAndTimeout(t *testing.T) {
	b := newBus()
	pb := b.add(t, "b", Options{})
	pc := b.add(t, "c", Options{})

	b.seat(playing("a", "b", "c"), "b", "c")

	for _, p := range []*player{pb, pc} {
		m := p.coord.Match()
		assert.Equal(t, GuesserTurn, m.Phase)
		assert.True(t, m.Waiting())
		assert.Equal(t, "a", m.Artist)
		assert.Len(t, p.sentOf(protocol.TypePlayer), 1)
	}

	b.inject("a", protocol.Turn{Number: 0, Words: []string{"cat", "dog", "sun"}, Correct: 1})
	b.flush()

	for _, p := range []*player{pb, pc} {
		m := p.coord.Match()
		assert.False(t, m.Waiting())
		assert.Equal(t, []string{"cat", "dog", "sun"}, m.Words)
		assert.Equal(t, 30, m.Remaining)
		assert.Equal(t, 1, p.sched.Armed())
	}

	require.NoError(t, pb.coord.SubmitGuess(1))
	b.flush()

	results := pb.eventsOf(GuessResult)
	require.Len(t, results, 1)
	assert.Equal(t, Feedback{Choice: 1, Word: "dog", CorrectWord: "dog", Correct: true}, results[0].Feedback)
	assert.Zero(t, pb.sched.Armed())

	for range 29 {
		require.Equal(t, 1, pc.sched.Fire())
	}
	assert.Empty(t, pc.eventsOf(GuessResult))
	assert.Equal(t, 1, pc.coord.Match().Remaining)

	require.Equal(t, 1, pc.sched.Fire())
	b.flush()

	results = pc.eventsOf(GuessResult)
	require.Len(t, results, 1)
	assert.Equal(t, Feedback{Choice: protocol.TimedOut, CorrectWord: "dog", TimedOut: true}, results[0].Feedback)
	assert.Equal(t, []protocol.Message{protocol.Guess{Turn: 0, Participant: "c", Choice: -1}}, pc.sentOf(protocol.TypeGuess))

	assert.Zero(t, pc.sched.Fire())
	assert.Len(t, pc.eventsOf(GuessResult), 1)

	// Each guesser hears about the other.
	peers := pc.eventsOf(PeerGuessed)
	require.Len(t, peers, 1)
	assert.Equal(t, PeerGuess{Participant: "b", Choice: 1, Word: "dog", Known: true, Correct: true}, peers[0].PeerGuess)

	peers = pb.eventsOf(PeerGuessed)
	require.Len(t, peers, 1)
	assert.Equal(t, PeerGuess{Participant: "c", Choice: -1, TimedOut: true}, peers[0].PeerGuess)
	assert.Equal(t, []string{"c"}, pb.coord.Match().Answered)
}

func TestMatch_ArtistDrawsAndHandsOver(t *testing.T) {
	b := newBus()
	pa := b.add(t, "a", Options{WordCount: 4})
	pb := b.add(t, "b", Options{WordCount: 4})
	pc := b.add(t, "c", Options{WordCount: 4})

	b.seat(playing("a", "b", "c"), "a", "b", "c")

	ma := pa.coord.Match()
	require.Equal(t, ArtistTurn, ma.Phase)
	require.Len(t, ma.Words, 4)
	assert.True(t, pa.coord.IsArtist())
	assert.Zero(t, pa.sched.Armed())

	for _, p := range []*player{pb, pc} {
		m := p.coord.Match()
		assert.Equal(t, GuesserTurn, m.Phase)
		assert.Equal(t, ma.Words, m.Words)
		assert.Equal(t, ma.Correct, m.Correct)
		assert.Equal(t, "a", m.Artist)
	}

	require.NoError(t, pa.coord.Paint(1, 2, 3))
	require.NoError(t, pa.coord.Paint(1, 2, 3))
	require.NoError(t, pa.coord.Paint(-1, 5, 2))
	b.flush()

	assert.Len(t, pa.sentOf(protocol.TypePaint), 1)
	for _, p := range []*player{pa, pb, pc} {
		assert.Equal(t, uint8(3), p.coord.Grid()[2][1])
	}

	require.NoError(t, pa.coord.EndTurn())
	b.flush()

	mb := pb.coord.Match()
	require.Equal(t, ArtistTurn, mb.Phase)
	assert.Equal(t, 1, mb.Turn)

	for _, p := range []*player{pa, pc} {
		m := p.coord.Match()
		assert.Equal(t, GuesserTurn, m.Phase)
		assert.Equal(t, 1, m.Turn)
		assert.Equal(t, "b", m.Artist)
		assert.Equal(t, mb.Words, m.Words)
		assert.Equal(t, uint8(0), p.coord.Grid()[2][1])
	}

	assert.ErrorIs(t, pa.coord.Paint(0, 0, 1), ErrNotArtist)
	assert.ErrorIs(t, pa.coord.EndTurn(), ErrNotArtist)
}

func TestMatch_SoloArtistRedraws(t *testing.T) {
	b := newBus()
	pa := b.add(t, "a", Options{})

	b.seat(playing("a"), "a")
	require.Equal(t, ArtistTurn, pa.coord.Match().Phase)

	require.NoError(t, pa.coord.EndTurn())

	m := pa.coord.Match()
	assert.Equal(t, ArtistTurn, m.Phase)
	assert.Equal(t, 1, m.Turn)
	assert.Len(t, m.Words, DefaultWordCount)
	assert.Len(t, pa.sentOf(protocol.TypeTurn), 2)
}

func TestTurnMessage_Idempotent(t *testing.T) {
	b := newBus()
	p := b.add(t, "b", Options{})
	b.seat(playing("a", "b"), "b")

	turn := protocol.Turn{Number: 0, Words: []string{"cat", "dog", "sun"}, Correct: 2}

	require.NoError(t, p.coord.HandleMessage("a", turn))
	once := p.coord.Match()
	events := len(p.events)

	require.NoError(t, p.coord.HandleMessage("a", turn))

	if diff := cmp.Diff(once, p.coord.Match()); diff != "" {
		t.Errorf("duplicate turn changed the match (-once +twice):\n%s", diff)
	}
	assert.Len(t, p.events, events)
	assert.Equal(t, 1, p.sched.Armed())
}

func TestStaleMessagesAreDropped(t *testing.T) {
	b := newBus()
	p := b.add(t, "c", Options{})
	b.seat(playing("a", "b", "c"), "c")

	require.NoError(t, p.coord.HandleMessage("c", protocol.Turn{Number: 2, Words: []string{"x", "y"}, Correct: 0}))
	before := p.coord.Match()

	stale := []protocol.Message{
		protocol.Turn{Number: 1, Words: []string{"old"}, Correct: 0},
		protocol.Turn{Number: 0},
		protocol.Paint{Turn: 1, X: 0, Y: 0, Color: 2},
		protocol.Clear{Turn: 0},
		protocol.Guess{Turn: 1, Participant: "b", Choice: 0},
		protocol.Artist{Turn: 1, Participant: "b"},
	}
	for _, msg := range stale {
		assert.ErrorIs(t, p.coord.HandleMessage("b", msg), ErrStaleMessage, msg.Type())
	}

	assert.Equal(t, before, p.coord.Match())
	assert.Equal(t, uint8(0), p.coord.Grid()[0][0])

	// Same turn is fine.
	require.NoError(t, p.coord.HandleMessage("c", protocol.Paint{Turn: 2, X: 0, Y: 0, Color: 2}))
	assert.Equal(t, uint8(2), p.coord.Grid()[0][0])
}

func TestSubmitGuess(t *testing.T) {
	b := newBus()
	p := b.add(t, "b", Options{})
	b.seat(playing("a", "b"), "b")

	assert.ErrorIs(t, p.coord.SubmitGuess(0), ErrNoActiveTurn)

	require.NoError(t, p.coord.HandleMessage("a", protocol.Turn{Number: 0, Words: []string{"cat", "dog", "sun"}, Correct: 2}))

	assert.ErrorIs(t, p.coord.SubmitGuess(3), ErrChoiceOutOfRange)
	assert.ErrorIs(t, p.coord.SubmitGuess(-1), ErrChoiceOutOfRange)
	assert.ErrorIs(t, p.coord.Paint(0, 0, 1), ErrNotArtist)
	assert.ErrorIs(t, p.coord.Clear(), ErrNotArtist)

	require.NoError(t, p.coord.SubmitGuess(0))
	assert.ErrorIs(t, p.coord.SubmitGuess(2), ErrAlreadyGuessed)

	m := p.coord.Match()
	assert.True(t, m.LocalGuessed)
	assert.Equal(t, 0, m.LocalGuess)
	assert.Len(t, p.sentOf(protocol.TypeGuess), 1)

	results := p.eventsOf(GuessResult)
	require.Len(t, results, 1)
	assert.Equal(t, Feedback{Choice: 0, Word: "cat", CorrectWord: "sun"}, results[0].Feedback)
}

func TestTimer_StopsWhenSessionEnds(t *testing.T) {
	b := newBus()
	p := b.add(t, "b", Options{})
	b.seat(playing("a", "b"), "b")
	require.NoError(t, p.coord.HandleMessage("a", protocol.Turn{Number: 0, Words: []string{"cat"}, Correct: 0}))

	for range 10 {
		p.sched.Fire()
	}
	assert.Equal(t, 20, p.coord.Match().Remaining)

	p.coord.HandleSession(session.Event{State: session.Disconnected})

	assert.Equal(t, MatchEnded, p.coord.Match().Phase)
	assert.Zero(t, p.sched.Armed())
	for range 30 {
		assert.Zero(t, p.sched.Fire())
	}
	assert.Empty(t, p.eventsOf(GuessResult))
	assert.Empty(t, p.sentOf(protocol.TypeGuess))
}

func TestTimer_RestartsOnNextTurn(t *testing.T) {
	b := newBus()
	p := b.add(t, "c", Options{GuessTicks: 5})
	b.seat(playing("a", "b", "c"), "c")

	require.NoError(t, p.coord.HandleMessage("a", protocol.Turn{Number: 0, Words: []string{"cat"}, Correct: 0}))
	p.sched.Fire()
	p.sched.Fire()

	require.NoError(t, p.coord.HandleMessage("b", protocol.Turn{Number: 1, Words: []string{"dog"}, Correct: 0}))
	assert.Equal(t, 5, p.coord.Match().Remaining)
	assert.Equal(t, 1, p.sched.Armed())

	for range 5 {
		p.sched.Fire()
	}
	assert.Equal(t, []protocol.Message{protocol.Guess{Turn: 1, Participant: "c", Choice: -1}}, p.sentOf(protocol.TypeGuess))
}

func TestTimer_IgnoresTickQueuedBeforeNextTurn(t *testing.T) {
	b := newBus()
	p := b.add(t, "c", Options{GuessTicks: 1})
	b.seat(playing("a", "b", "c"), "c")

	require.NoError(t, p.coord.HandleMessage("a", protocol.Turn{Number: 0, Words: []string{"cat"}, Correct: 0}))
	require.Equal(t, 1, p.coord.Match().Remaining)

	require.Equal(t, 1, p.sched.Expire())
	require.NoError(t, p.coord.HandleMessage("b", protocol.Turn{Number: 1, Words: []string{"dog"}, Correct: 0}))
	require.Equal(t, 1, p.sched.Pending())

	p.sched.Drain()

	assert.Equal(t, GuesserTurn, p.coord.Match().Phase)
	assert.Equal(t, 1, p.coord.Match().Turn)
	assert.Equal(t, 1, p.coord.Match().Remaining)
	assert.Empty(t, p.eventsOf(GuessResult))
	assert.Empty(t, p.sentOf(protocol.TypeGuess))

	assert.Equal(t, 1, p.sched.Fire())
	assert.Equal(t, []protocol.Message{protocol.Guess{Turn: 1, Participant: "c", Choice: -1}}, p.sentOf(protocol.TypeGuess))
}

func TestMatch_EndsWhenOpponentsLeave(t *testing.T) {
	b := newBus()
	pa := b.add(t, "a", Options{})
	b.seat(playing("a", "b"), "a")

	require.NoError(t, pa.coord.Paint(0, 0, 1))
	require.Equal(t, ArtistTurn, pa.coord.Match().Phase)

	b.seat(playing("a"), "a")

	assert.Equal(t, MatchEnded, pa.coord.Match().Phase)
	assert.Equal(t, uint8(0), pa.coord.Grid()[0][0])

	// Still playing on its own, but no new match until it rejoins.
	b.seat(playing("a"), "a")
	assert.Equal(t, MatchEnded, pa.coord.Match().Phase)

	b.seat(roster.Snapshot{Participants: []roster.Participant{{ID: "a", State: roster.Ready}}}, "a")
	b.seat(playing("a"), "a")

	m := pa.coord.Match()
	assert.Equal(t, ArtistTurn, m.Phase)
	assert.Zero(t, m.Turn)
}

func TestMatch_EndsWhenLocalPlayerLeaves(t *testing.T) {
	b := newBus()
	p := b.add(t, "b", Options{})
	b.seat(playing("a", "b", "c"), "b")
	require.NoError(t, p.coord.HandleMessage("a", protocol.Turn{Number: 0, Words: []string{"cat"}, Correct: 0}))

	s := playing("a", "c")
	s.Participants = append(s.Participants, roster.Participant{ID: "b", State: roster.Available})
	b.seat(s, "b")

	assert.Equal(t, MatchEnded, p.coord.Match().Phase)
	assert.Zero(t, p.sched.Armed())
}

func TestMatch_NextArtistTakesOverWhenArtistLeaves(t *testing.T) {
	b := newBus()
	pa := b.add(t, "a", Options{})
	pb := b.add(t, "b", Options{})
	pc := b.add(t, "c", Options{})

	b.seat(playing("a", "b", "c"), "a", "b", "c")
	require.Equal(t, ArtistTurn, pa.coord.Match().Phase)

	delete(b.players, "a")
	b.seat(playing("b", "c"), "b", "c")

	mc := pc.coord.Match()
	require.Equal(t, ArtistTurn, mc.Phase)
	assert.Equal(t, 1, mc.Turn)

	mb := pb.coord.Match()
	assert.Equal(t, GuesserTurn, mb.Phase)
	assert.Equal(t, 1, mb.Turn)
	assert.Equal(t, "c", mb.Artist)
	assert.Equal(t, mc.Words, mb.Words)
}

func TestDefaultWords(t *testing.T) {
	words := DefaultWords()

	require.GreaterOrEqual(t, len(words), DefaultWordCount)
	assert.Contains(t, words, "cat")
	assert.NotContains(t, words, "")
}

func TestPickWords(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	all := []string{"a", "b", "c", "d", "e"}

	for range 100 {
		words, correct := pickWords(rng, all, 3)

		require.Len(t, words, 3)
		assert.Len(t, slices.Compact(slices.Sorted(slices.Values(words))), 3)
		assert.GreaterOrEqual(t, correct, 0)
		assert.Less(t, correct, 3)
	}

	words, _ := pickWords(rng, all[:2], 10)
	assert.Len(t, words, 2)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, all)
}
