/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package turn

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Seednode/drawcast/grid"
)

var (
	ErrStaleMessage     = errors.New("message for an earlier turn")
	ErrNotArtist        = errors.New("not the artist this turn")
	ErrNoActiveTurn     = errors.New("no turn to guess in")
	ErrAlreadyGuessed   = errors.New("already guessed this turn")
	ErrChoiceOutOfRange = errors.New("choice out of range")
)

type Phase int

const (
	NotStarted Phase = iota
	TurnStarting
	ArtistTurn
	GuesserTurn
	TurnEnding
	MatchEnded
)

var phaseNames = [...]string{
	"not started",
	"turn starting",
	"drawing",
	"guessing",
	"turn ending",
	"match ended",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}

	return phaseNames[p]
}

// Match is a read-only copy of the coordinator's match state.
type Match struct {
	Phase  Phase
	Turn   int
	Artist string
	Order  []string

	// Words and Correct are only set once the turn's word list is known.
	Words   []string
	Correct int

	Answered     []string
	LocalGuessed bool
	LocalGuess   int
	Remaining    int
}

// Waiting reports whether the local player is a guesser that has not yet
// received this turn's words.
func (m Match) Waiting() bool {
	return m.Phase == GuesserTurn && len(m.Words) == 0
}

func (m Match) clone() Match {
	m.Order = slices.Clone(m.Order)
	m.Words = slices.Clone(m.Words)
	m.Answered = slices.Clone(m.Answered)

	return m
}

// ArtistFor returns who draws turn k given the match's turn order.
func ArtistFor(order []string, k int) string {
	if len(order) == 0 || k < 0 {
		return ""
	}

	return order[k%len(order)]
}

type EventKind int

const (
	MatchChanged EventKind = iota
	GridCleared
	CellPainted
	GuessResult
	PeerGuessed
)

// Feedback is the outcome of the local player's guess.
type Feedback struct {
	Choice      int
	Word        string
	CorrectWord string
	Correct     bool
	TimedOut    bool
}

// PeerGuess reports another participant's guess. Known is false when the
// local player does not have the turn's words.
type PeerGuess struct {
	Participant string
	Choice      int
	Word        string
	Known       bool
	Correct     bool
	TimedOut    bool
}

type Event struct {
	Kind      EventKind
	Match     Match
	Grid      [][]uint8
	Cell      grid.Cell
	Feedback  Feedback
	PeerGuess PeerGuess
}
