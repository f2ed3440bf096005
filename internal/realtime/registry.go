package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/grid"
)

// Registry maps space ids to live rooms. It is the sole owner of all rooms:
// a room exists exactly while it has at least one occupant. The registry
// mutex guards only the map itself; per-space state is guarded by each
// room's own lock, so operations on different spaces never block each other.
type Registry struct {
	logger *zap.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		rooms:  make(map[string]*room),
	}
}

// lookup returns the room for spaceID, or nil.
func (reg *Registry) lookup(spaceID string) *room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[spaceID]
}

// obtain returns the room for spaceID, creating it lazily.
func (reg *Registry) obtain(spaceID string, space grid.Space) *room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rm, ok := reg.rooms[spaceID]; ok {
		return rm
	}
	rm := newRoom(spaceID, space)
	reg.rooms[spaceID] = rm
	reg.logger.Debug("room created", zap.String("space_id", spaceID))
	return rm
}

// evict removes rm from the map if the map still points at it. A newer room
// for the same space must never be evicted by a stale teardown.
func (reg *Registry) evict(spaceID string, rm *room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rooms[spaceID] == rm {
		delete(reg.rooms, spaceID)
		reg.logger.Debug("room destroyed", zap.String("space_id", spaceID))
	}
}

// Join admits a connection into the space's room, creating the room on first
// join. The assigned spawn and a point-in-time snapshot of the other
// occupants are returned; the joiner's ack and the user-joined announcements
// are enqueued atomically with the insertion.
//
// Postcondition: On success the user occupies a cell satisfying the space's
// constraints. Returns ErrAlreadyJoined or ErrSpaceFull on refusal.
func (reg *Registry) Join(spaceID string, space grid.Space, conn Conn, userID string) (grid.Position, []UserInfo, error) {
	for {
		rm := reg.obtain(spaceID, space)
		spawn, others, err := rm.join(conn, userID)
		if err == errRoomClosed {
			// Lost a race with the room's teardown: drop the dead room
			// and retry against a fresh one.
			reg.evict(spaceID, rm)
			continue
		}
		return spawn, others, err
	}
}

// Move validates and applies a movement request. Operating on an unknown
// space is a no-op, guarding against races with a concurrent leave.
//
// Postcondition: Returns true if the occupant now holds the target cell.
// On rejection the mover has been sent movement-rejected with its unchanged
// position.
func (reg *Registry) Move(spaceID, userID string, to grid.Position) bool {
	rm := reg.lookup(spaceID)
	if rm == nil {
		return false
	}
	return rm.move(userID, to)
}

// Leave removes the user from the space's room and announces the departure.
// Idempotent: leaving a space the user does not occupy, or an unknown space,
// is a no-op.
//
// Postcondition: Returns true if an occupant was actually removed. An
// emptied room is destroyed immediately.
func (reg *Registry) Leave(spaceID, userID string) bool {
	rm := reg.lookup(spaceID)
	if rm == nil {
		return false
	}
	removed, empty := rm.leave(userID)
	if empty {
		reg.evict(spaceID, rm)
	}
	return removed
}

// Broadcast enqueues a frame to every occupant of the space except
// excludeUserID (empty string excludes nobody). Unknown spaces are a no-op.
func (reg *Registry) Broadcast(spaceID, excludeUserID string, data []byte) {
	if rm := reg.lookup(spaceID); rm != nil {
		rm.broadcast(excludeUserID, data)
	}
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// OccupantCount returns the number of occupants in the space, 0 if the room
// does not exist.
func (reg *Registry) OccupantCount(spaceID string) int {
	rm := reg.lookup(spaceID)
	if rm == nil {
		return 0
	}
	return rm.occupantCount()
}

// Position returns the user's current cell in the space.
func (reg *Registry) Position(spaceID, userID string) (grid.Position, bool) {
	rm := reg.lookup(spaceID)
	if rm == nil {
		return grid.Position{}, false
	}
	return rm.position(userID)
}
