/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roster

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

type PlayerState int

const (
	Unknown PlayerState = iota
	Available
	Ready
	Playing
)

var stateNames = [...]string{"unknown", "available", "ready", "playing"}

func (s PlayerState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return stateNames[Unknown]
	}

	return stateNames[s]
}

func ParseState(s string) (PlayerState, error) {
	i := slices.Index(stateNames[:], strings.ToLower(s))
	if i < 0 {
		return Unknown, fmt.Errorf("unknown player state %q", s)
	}

	return PlayerState(i), nil
}

func (s PlayerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PlayerState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = parsed

	return nil
}

// Participant is one player as reported by the display.
type Participant struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	State PlayerState `json:"state"`
}

// Snapshot is a complete roster; each one replaces the previous.
type Snapshot struct {
	Participants []Participant `json:"participants"`
	LobbyOpen    bool          `json:"lobby_open"`
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Participants: slices.Clone(s.Participants),
		LobbyOpen:    s.LobbyOpen,
	}
}

func (s Snapshot) Count(state PlayerState) int {
	n := 0
	for _, p := range s.Participants {
		if p.State == state {
			n++
		}
	}

	return n
}
