package realtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/cjmeyer/gridverse/internal/grid"
)

// Conn is the outbound side of a connection as seen by rooms and the engine.
// *Client satisfies it; tests substitute fakes.
type Conn interface {
	ID() string
	Enqueue(data []byte) bool
	Close()
}

// ErrAlreadyJoined is returned when a user already occupies the room.
var ErrAlreadyJoined = errors.New("user already in room")

// ErrSpaceFull is returned when no free spawn cell exists.
var ErrSpaceFull = errors.New("no free cell in space")

// errRoomClosed signals that a room was emptied and torn down between lookup
// and join; the registry retries with a fresh room.
var errRoomClosed = errors.New("room closed")

// Occupant is one user's live presence inside a room. Owned exclusively by
// the room; all access goes through room methods under the room lock.
type Occupant struct {
	UserID string
	Pos    grid.Position
	conn   Conn
}

// room holds the authoritative state of one space while it has occupants.
// One mutex per room: operations on the same space serialise, operations on
// different spaces never contend. Broadcasts are enqueued inside the critical
// section so every member observes events in a single per-room order, but
// enqueueing never blocks on socket writes.
type room struct {
	spaceID string
	space   grid.Space

	mu        sync.Mutex
	occupants map[string]*Occupant
	closed    bool
}

func newRoom(spaceID string, space grid.Space) *room {
	return &room{
		spaceID:   spaceID,
		space:     space,
		occupants: make(map[string]*Occupant),
	}
}

// taken returns the set of cells held by live occupants. Caller must hold mu.
func (r *room) taken() map[grid.Position]bool {
	cells := make(map[grid.Position]bool, len(r.occupants))
	for _, occ := range r.occupants {
		cells[occ.Pos] = true
	}
	return cells
}

// snapshotOthers returns every occupant except exclude, sorted by user id for
// deterministic ordering. Caller must hold mu.
func (r *room) snapshotOthers(exclude string) []UserInfo {
	users := make([]UserInfo, 0, len(r.occupants))
	for _, occ := range r.occupants {
		if occ.UserID == exclude {
			continue
		}
		users = append(users, UserInfo{UserID: occ.UserID, X: occ.Pos.X, Y: occ.Pos.Y})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// join admits a connection, assigns a spawn cell, and announces the arrival.
// The joiner's ack and the user-joined fan-out are enqueued atomically with
// the insertion, so the snapshot is consistent with the room state
// immediately before the joiner became visible.
func (r *room) join(conn Conn, userID string) (grid.Position, []UserInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return grid.Position{}, nil, errRoomClosed
	}
	if _, exists := r.occupants[userID]; exists {
		return grid.Position{}, nil, ErrAlreadyJoined
	}

	spawn, ok := r.space.Spawn(r.taken())
	if !ok {
		return grid.Position{}, nil, ErrSpaceFull
	}

	others := r.snapshotOthers(userID)
	r.occupants[userID] = &Occupant{UserID: userID, Pos: spawn, conn: conn}

	conn.Enqueue(EncodeSpaceJoined(spawn, others))
	announce := EncodeUserJoined(userID, spawn)
	for _, occ := range r.occupants {
		if occ.UserID != userID {
			occ.conn.Enqueue(announce)
		}
	}

	return spawn, others, nil
}

// move atomically validates and applies a movement request. On acceptance the
// occupant's position is updated and the move is announced to everyone else;
// on rejection only the mover is told, echoing its unchanged position. A
// request from a user no longer in the room is a no-op: it lost a race with
// its own leave.
func (r *room) move(userID string, to grid.Position) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	occ, ok := r.occupants[userID]
	if !ok {
		return false
	}

	legal := grid.IsStep(occ.Pos, to) && r.space.CanOccupy(to)
	if legal {
		for _, other := range r.occupants {
			if other.UserID != userID && other.Pos == to {
				legal = false
				break
			}
		}
	}

	if !legal {
		occ.conn.Enqueue(EncodeMovementRejected(occ.Pos))
		return false
	}

	occ.Pos = to
	announce := EncodeMovement(userID, to)
	for _, other := range r.occupants {
		if other.UserID != userID {
			other.conn.Enqueue(announce)
		}
	}
	return true
}

// leave removes an occupant and announces the departure. Removing an absent
// user is a no-op, which makes disconnect handling idempotent. When the last
// occupant leaves the room marks itself closed; the registry then drops it.
func (r *room) leave(userID string) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.occupants[userID]; !ok {
		return false, false
	}
	delete(r.occupants, userID)

	announce := EncodeUserLeft(userID)
	for _, occ := range r.occupants {
		occ.conn.Enqueue(announce)
	}

	if len(r.occupants) == 0 {
		r.closed = true
		return true, true
	}
	return true, false
}

// broadcast enqueues a frame to every occupant except excludeUserID (empty
// string excludes nobody).
func (r *room) broadcast(excludeUserID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, occ := range r.occupants {
		if excludeUserID != "" && occ.UserID == excludeUserID {
			continue
		}
		occ.conn.Enqueue(data)
	}
}

// occupantCount returns the number of live occupants.
func (r *room) occupantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occupants)
}

// position returns the occupant's current cell, if present.
func (r *room) position(userID string) (grid.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	occ, ok := r.occupants[userID]
	if !ok {
		return grid.Position{}, false
	}
	return occ.Pos, true
}
