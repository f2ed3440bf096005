// Package realtime implements the presence and movement engine: per-user
// websocket connections, room occupancy, movement validation, and fan-out
// broadcast of state changes.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cjmeyer/gridverse/internal/grid"
)

// Message type tags on the wire. Every frame is {"type": ..., "payload": ...}.
const (
	TypeJoin             = "join"
	TypeMovement         = "movement"
	TypeSpaceJoined      = "space-joined"
	TypeUserJoined       = "user-joined"
	TypeMovementRejected = "movement-rejected"
	TypeUserLeft         = "user-left"
	TypeError            = "error"
)

// ErrMalformedMessage is returned for frames that are not valid JSON or do
// not match their declared payload shape.
var ErrMalformedMessage = errors.New("malformed message")

// ErrUnknownType is returned for frames carrying an unrecognised type tag.
var ErrUnknownType = errors.New("unknown message type")

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound is the closed set of client-to-server messages.
type Inbound interface {
	inbound()
}

// JoinMessage asks to enter a space, authenticating with a session token.
type JoinMessage struct {
	SpaceID string `json:"spaceId"`
	Token   string `json:"token"`
}

func (JoinMessage) inbound() {}

// MovementMessage requests a move to an absolute cell. Any client-supplied
// userId is informational only: the server always derives the mover from the
// connection's bound identity.
type MovementMessage struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	UserID string `json:"userId,omitempty"`
}

func (MovementMessage) inbound() {}

// DecodeInbound parses a raw frame into a typed inbound message.
//
// Postcondition: Returns a JoinMessage or MovementMessage, ErrUnknownType for
// an unrecognised tag, or ErrMalformedMessage for undecodable frames.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeJoin:
		var msg JoinMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: join payload: %v", ErrMalformedMessage, err)
		}
		return msg, nil
	case TypeMovement:
		var msg MovementMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: movement payload: %v", ErrMalformedMessage, err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// UserInfo describes one occupant in outbound payloads.
type UserInfo struct {
	UserID string `json:"userId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type spaceJoinedPayload struct {
	Spawn grid.Position `json:"spawn"`
	Users []UserInfo    `json:"users"`
}

type userLeftPayload struct {
	UserID string `json:"userId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// encode marshals an outbound frame. The payload types are all plain structs,
// so marshalling cannot fail.
func encode(msgType string, payload any) []byte {
	data, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: msgType, Payload: payload})
	return data
}

// EncodeSpaceJoined builds the joiner's ack: assigned spawn plus a snapshot
// of the other occupants. users must never include the joiner itself.
func EncodeSpaceJoined(spawn grid.Position, users []UserInfo) []byte {
	if users == nil {
		users = []UserInfo{}
	}
	return encode(TypeSpaceJoined, spaceJoinedPayload{Spawn: spawn, Users: users})
}

// EncodeUserJoined announces a new occupant to the rest of the room.
func EncodeUserJoined(userID string, pos grid.Position) []byte {
	return encode(TypeUserJoined, UserInfo{UserID: userID, X: pos.X, Y: pos.Y})
}

// EncodeMovement announces an accepted move to the rest of the room.
func EncodeMovement(userID string, pos grid.Position) []byte {
	return encode(TypeMovement, UserInfo{UserID: userID, X: pos.X, Y: pos.Y})
}

// EncodeMovementRejected tells the mover its request was refused, echoing the
// mover's current position so the client can resynchronise.
func EncodeMovementRejected(current grid.Position) []byte {
	return encode(TypeMovementRejected, current)
}

// EncodeUserLeft announces a departure to the rest of the room.
func EncodeUserLeft(userID string) []byte {
	return encode(TypeUserLeft, userLeftPayload{UserID: userID})
}

// EncodeError builds a protocol error frame.
func EncodeError(message string) []byte {
	return encode(TypeError, errorPayload{Message: message})
}
