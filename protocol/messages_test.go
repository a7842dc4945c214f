/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Seednode/drawcast/roster"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTripsEveryType(t *testing.T) {
	messages := []Message{
		Turn{Number: 3, Words: []string{"cat", "dog", "sun"}, Correct: 1},
		Clear{Turn: 3},
		Paint{Turn: 3, X: 0, Y: 19, Color: 2},
		Guess{Turn: 3, Participant: "b", Choice: TimedOut},
		Player{Participant: "c"},
		Artist{Turn: 3, Participant: "a"},
	}

	for _, msg := range messages {
		t.Run(string(msg.Type()), func(t *testing.T) {
			env, err := Wrap(msg)
			require.NoError(t, err)

			data, err := json.Marshal(env)
			require.NoError(t, err)

			var decoded Envelope
			require.NoError(t, json.Unmarshal(data, &decoded))

			got, err := decoded.Open()
			require.NoError(t, err)

			if diff := cmp.Diff(msg, got); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnvelope_UnknownType(t *testing.T) {
	env := Envelope{Type: "scribble", Data: json.RawMessage(`{}`)}

	_, err := env.Open()
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestEnvelope_BadPayload(t *testing.T) {
	env := Envelope{Type: TypePaint, Data: json.RawMessage(`{"x":"left"}`)}

	_, err := env.Open()
	assert.Error(t, err)
}

func TestTurn_HasWords(t *testing.T) {
	assert.True(t, Turn{Words: []string{"a", "b"}, Correct: 1}.HasWords())
	assert.False(t, Turn{Number: 4}.HasWords())
	assert.False(t, Turn{Words: []string{"a"}, Correct: 1}.HasWords())
	assert.False(t, Turn{Words: []string{"a"}, Correct: -1}.HasWords())
}

func TestTurnOf(t *testing.T) {
	n, ok := TurnOf(Paint{Turn: 7})
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = TurnOf(Player{Participant: "a"})
	assert.False(t, ok)
}

func TestFrame_JSONOmitsUnsetFields(t *testing.T) {
	data, err := json.Marshal(Frame{Type: FrameLeave})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"leave"}`, string(data))

	data, err = json.Marshal(Frame{Type: FramePlayerState, RequestID: "r1", State: roster.Ready, Name: "sakura"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"player_state","request_id":"r1","state":"ready","name":"sakura"}`, string(data))
}

func TestAck(t *testing.T) {
	ok := Ack("r1", nil)
	assert.True(t, ok.OK())
	assert.Empty(t, ok.Error)

	failed := Ack("r2", errors.New("lobby closed"))
	assert.False(t, failed.OK())
	assert.Equal(t, "lobby closed", failed.Error)
	assert.Equal(t, "r2", failed.RequestID)
}
