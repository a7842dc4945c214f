/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package protocol defines the game messages exchanged between
// controllers, and the frames used to carry them to and from a display.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeTurn   Type = "turn"
	TypeClear  Type = "clear"
	TypePaint  Type = "paint"
	TypeGuess  Type = "guess"
	TypePlayer Type = "player"
	TypeArtist Type = "artist"
)

// TimedOut is the guess choice recorded when the countdown expires.
const TimedOut = -1

var ErrUnknownType = errors.New("unknown message type")

// Message is implemented by every game message.
type Message interface {
	Type() Type
}

// Turn announces the word list for a turn. A Turn without words hands
// the turn over to whoever is the artist for that turn number.
type Turn struct {
	Number  int      `json:"turn"`
	Words   []string `json:"words,omitempty"`
	Correct int      `json:"correct"`
}

type Clear struct {
	Turn int `json:"turn"`
}

type Paint struct {
	Turn  int   `json:"turn"`
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Color uint8 `json:"color"`
}

type Guess struct {
	Turn        int    `json:"turn"`
	Participant string `json:"participant"`
	Choice      int    `json:"choice"`
}

// Player asks the display to resend the current turn to the sender.
type Player struct {
	Participant string `json:"participant"`
}

type Artist struct {
	Turn        int    `json:"turn"`
	Participant string `json:"participant"`
}

func (Turn) Type() Type   { return TypeTurn }
func (Clear) Type() Type  { return TypeClear }
func (Paint) Type() Type  { return TypePaint }
func (Guess) Type() Type  { return TypeGuess }
func (Player) Type() Type { return TypePlayer }
func (Artist) Type() Type { return TypeArtist }

// HasWords reports whether a turn message carries a playable word list.
func (t Turn) HasWords() bool {
	return len(t.Words) > 0 && t.Correct >= 0 && t.Correct < len(t.Words)
}

// Envelope is the tagged JSON form of a Message.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

func Wrap(msg Message) (*Envelope, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	return &Envelope{Type: msg.Type(), Data: data}, nil
}

func (e *Envelope) Open() (Message, error) {
	var msg Message

	switch e.Type {
	case TypeTurn:
		msg = &Turn{}
	case TypeClear:
		msg = &Clear{}
	case TypePaint:
		msg = &Paint{}
	case TypeGuess:
		msg = &Guess{}
	case TypePlayer:
		msg = &Player{}
	case TypeArtist:
		msg = &Artist{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}

	if err := json.Unmarshal(e.Data, msg); err != nil {
		return nil, fmt.Errorf("decoding %s message: %w", e.Type, err)
	}

	return deref(msg), nil
}

// deref hands out values rather than pointers, so receivers can never
// mutate a message another component still holds.
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *Turn:
		return *m
	case *Clear:
		return *m
	case *Paint:
		return *m
	case *Guess:
		return *m
	case *Player:
		return *m
	case *Artist:
		return *m
	}

	return msg
}

// TurnOf returns the turn number a message belongs to, if it has one.
func TurnOf(msg Message) (int, bool) {
	switch m := msg.(type) {
	case Turn:
		return m.Number, true
	case Clear:
		return m.Turn, true
	case Paint:
		return m.Turn, true
	case Guess:
		return m.Turn, true
	case Artist:
		return m.Turn, true
	}

	return 0, false
}
