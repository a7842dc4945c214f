/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package protocol

import (
	"github.com/Seednode/drawcast/roster"
)

type FrameType string

// Control channel frames
const (
	FrameLaunch   FrameType = "launch"
	FrameLaunched FrameType = "launched"
	FrameStop     FrameType = "stop"
	FrameLeave    FrameType = "leave"
	FrameClosed   FrameType = "closed"
)

// Game channel frames
const (
	FrameSessionInfo FrameType = "session_info"
	FramePlayerState FrameType = "player_state"
	FrameGame        FrameType = "game"
	FrameRoster      FrameType = "roster"
)

// Replies on either channel
const (
	FrameAck   FrameType = "ack"
	FrameError FrameType = "error"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Frame is everything that crosses a websocket between a controller and
// a display. Only the fields relevant to Type are set.
type Frame struct {
	Type      FrameType          `json:"type"`
	RequestID string             `json:"request_id,omitempty"` // echoed in ack/launched/error
	AppID     string             `json:"app_id,omitempty"`     // launch
	SessionID string             `json:"session_id,omitempty"` // launched, stop, closed
	PlayerID  string             `json:"player_id,omitempty"`  // session_info, ack
	From      string             `json:"from,omitempty"`       // game, as relayed by the display
	State     roster.PlayerState `json:"state,omitempty"`      // player_state
	Name      string             `json:"name,omitempty"`       // player_state
	Roster    *roster.Snapshot   `json:"roster,omitempty"`     // session_info, roster
	Game      *Envelope          `json:"game,omitempty"`       // game
	Status    string             `json:"status,omitempty"`     // ack
	Error     string             `json:"error,omitempty"`      // ack, error
	Reason    string             `json:"reason,omitempty"`     // closed
}

func Ack(requestID string, err error) Frame {
	f := Frame{
		Type:      FrameAck,
		RequestID: requestID,
		Status:    StatusOK,
	}
	if err != nil {
		f.Status = StatusError
		f.Error = err.Error()
	}

	return f
}

func (f Frame) OK() bool {
	return f.Status == StatusOK
}
