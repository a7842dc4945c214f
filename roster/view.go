/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roster

import (
	"slices"
)

// View is the read side of the roster. It is only ever changed by
// applying a full snapshot received from the session.
type View struct {
	snapshot Snapshot
	byID     map[string]Participant
}

func NewView() *View {
	return &View{
		byID: make(map[string]Participant),
	}
}

func (v *View) Apply(s Snapshot) {
	v.snapshot = s.Clone()
	v.byID = make(map[string]Participant, len(s.Participants))
	for _, p := range s.Participants {
		v.byID[p.ID] = p
	}
}

func (v *View) Reset() {
	v.Apply(Snapshot{})
}

func (v *View) Snapshot() Snapshot {
	return v.snapshot.Clone()
}

func (v *View) Participant(id string) (Participant, bool) {
	p, ok := v.byID[id]

	return p, ok
}

func (v *View) PlayerState(id string) PlayerState {
	return v.byID[id].State
}

func (v *View) Name(id string) string {
	if p, ok := v.byID[id]; ok && p.Name != "" {
		return p.Name
	}

	return id
}

// TurnOrder lists the ids of everyone currently playing, sorted so every
// participant derives the same order from the same roster.
func (v *View) TurnOrder() []string {
	ids := make([]string, 0, len(v.byID))
	for id, p := range v.byID {
		if p.State == Playing {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return ids
}
