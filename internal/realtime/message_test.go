package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjmeyer/gridverse/internal/grid"
)

func TestDecodeInbound_Join(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"join","payload":{"spaceId":"s1","token":"tok"}}`))
	require.NoError(t, err)

	join, ok := msg.(JoinMessage)
	require.True(t, ok)
	assert.Equal(t, "s1", join.SpaceID)
	assert.Equal(t, "tok", join.Token)
}

func TestDecodeInbound_Movement(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"movement","payload":{"x":3,"y":7,"userId":"spoofed"}}`))
	require.NoError(t, err)

	mv, ok := msg.(MovementMessage)
	require.True(t, ok)
	assert.Equal(t, 3, mv.X)
	assert.Equal(t, 7, mv.Y)
	// Carried but never trusted.
	assert.Equal(t, "spoofed", mv.UserID)
}

func TestDecodeInbound_UnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"teleport","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeInbound_Malformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`not json at all`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = DecodeInbound([]byte(`{"type":"movement","payload":{"x":"east"}}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestEncodeSpaceJoined_EmptyUsersIsArray(t *testing.T) {
	data := EncodeSpaceJoined(grid.Position{X: 1, Y: 2}, nil)

	var frame struct {
		Type    string `json:"type"`
		Payload struct {
			Spawn grid.Position   `json:"spawn"`
			Users json.RawMessage `json:"users"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, TypeSpaceJoined, frame.Type)
	assert.Equal(t, grid.Position{X: 1, Y: 2}, frame.Payload.Spawn)
	// Clients iterate users; an absent or null array would crash them.
	assert.JSONEq(t, `[]`, string(frame.Payload.Users))
}

func TestEncodeMovementRejected_EchoesCurrentPosition(t *testing.T) {
	data := EncodeMovementRejected(grid.Position{X: 5, Y: 5})

	var frame struct {
		Type    string        `json:"type"`
		Payload grid.Position `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, TypeMovementRejected, frame.Type)
	assert.Equal(t, grid.Position{X: 5, Y: 5}, frame.Payload)
}
