package realtime

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/auth"
	"github.com/cjmeyer/gridverse/internal/grid"
)

// TokenVerifier resolves a session token to a verified identity.
// *auth.Manager satisfies it.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// SpaceResolver loads the spatial metadata of a space: dimensions plus the
// cells covered by static elements.
type SpaceResolver interface {
	ResolveSpace(ctx context.Context, spaceID string) (grid.Space, error)
}

// ErrSpaceNotFound is returned by SpaceResolver implementations for unknown
// space ids.
var ErrSpaceNotFound = errors.New("space not found")

// SessionState is a connection's protocol state.
type SessionState int

const (
	// StateUnjoined is the initial state: the connection exists but has not
	// entered any space.
	StateUnjoined SessionState = iota
	// StateJoined means the connection occupies exactly one room.
	StateJoined
	// StateClosed is terminal; no transition leaves it.
	StateClosed
)

// maxValidationFailures is the number of consecutive undecodable frames
// tolerated before the connection is dropped.
const maxValidationFailures = 8

// Session is the per-connection protocol state. It is owned by the single
// goroutine reading that connection, so it needs no locking.
type Session struct {
	conn      Conn
	state     SessionState
	userID    string
	spaceID   string
	badFrames int
}

// UserID returns the authenticated user id, empty until joined.
func (s *Session) UserID() string { return s.userID }

// State returns the session's protocol state.
func (s *Session) State() SessionState { return s.state }

// Engine drives the protocol state machine. It consumes decoded inbound
// messages, enforces the join and movement rules against the registry, and
// emits outbound messages through the room's fan-out.
type Engine struct {
	registry *Registry
	verifier TokenVerifier
	spaces   SpaceResolver
	logger   *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: all arguments must be non-nil.
func NewEngine(registry *Registry, verifier TokenVerifier, spaces SpaceResolver, logger *zap.Logger) *Engine {
	return &Engine{
		registry: registry,
		verifier: verifier,
		spaces:   spaces,
		logger:   logger,
	}
}

// NewSession binds a fresh unjoined session to a connection.
func (e *Engine) NewSession(conn Conn) *Session {
	return &Session{conn: conn, state: StateUnjoined}
}

// HandleFrame decodes and applies one inbound frame. Malformed frames and
// unknown tags produce an error message back to the client; after too many
// consecutive offences the connection is closed.
func (e *Engine) HandleFrame(ctx context.Context, sess *Session, data []byte) {
	if sess.state == StateClosed {
		return
	}

	msg, err := DecodeInbound(data)
	if err != nil {
		sess.badFrames++
		e.logger.Debug("rejecting frame",
			zap.String("user_id", sess.userID),
			zap.Int("consecutive", sess.badFrames),
			zap.Error(err),
		)
		sess.conn.Enqueue(EncodeError(err.Error()))
		if sess.badFrames >= maxValidationFailures {
			e.Disconnect(sess)
		}
		return
	}
	sess.badFrames = 0

	switch m := msg.(type) {
	case JoinMessage:
		e.handleJoin(ctx, sess, m)
	case MovementMessage:
		e.handleMovement(sess, m)
	}
}

// handleJoin performs the Unjoined -> Joined transition: verify the token,
// resolve the space, and admit the connection into the room. Any guard
// failure sends an error frame and closes the connection.
func (e *Engine) handleJoin(ctx context.Context, sess *Session, msg JoinMessage) {
	if sess.state != StateUnjoined {
		sess.conn.Enqueue(EncodeError("already joined"))
		return
	}

	claims, err := e.verifier.Verify(msg.Token)
	if err != nil {
		e.logger.Debug("join with invalid token", zap.Error(err))
		sess.conn.Enqueue(EncodeError("authentication failed"))
		e.Disconnect(sess)
		return
	}

	space, err := e.spaces.ResolveSpace(ctx, msg.SpaceID)
	if err != nil {
		if errors.Is(err, ErrSpaceNotFound) {
			sess.conn.Enqueue(EncodeError("space not found"))
		} else {
			e.logger.Error("resolving space",
				zap.String("space_id", msg.SpaceID),
				zap.Error(err),
			)
			sess.conn.Enqueue(EncodeError("space unavailable"))
		}
		e.Disconnect(sess)
		return
	}

	spawn, _, err := e.registry.Join(msg.SpaceID, space, sess.conn, claims.UserID)
	if err != nil {
		e.logger.Debug("join refused",
			zap.String("space_id", msg.SpaceID),
			zap.String("user_id", claims.UserID),
			zap.Error(err),
		)
		sess.conn.Enqueue(EncodeError(err.Error()))
		e.Disconnect(sess)
		return
	}

	sess.userID = claims.UserID
	sess.spaceID = msg.SpaceID
	sess.state = StateJoined

	e.logger.Info("user joined space",
		zap.String("space_id", msg.SpaceID),
		zap.String("user_id", claims.UserID),
		zap.Int("spawn_x", spawn.X),
		zap.Int("spawn_y", spawn.Y),
	)
}

// handleMovement applies a movement request for a joined session. The mover's
// identity comes from the session binding; any userId in the payload is
// ignored. A rejection is a normal protocol outcome, not a fault.
func (e *Engine) handleMovement(sess *Session, msg MovementMessage) {
	if sess.state != StateJoined {
		sess.conn.Enqueue(EncodeError("not in a space"))
		return
	}

	to := grid.Position{X: msg.X, Y: msg.Y}
	if !e.registry.Move(sess.spaceID, sess.userID, to) {
		e.logger.Debug("movement rejected",
			zap.String("space_id", sess.spaceID),
			zap.String("user_id", sess.userID),
			zap.Int("x", msg.X),
			zap.Int("y", msg.Y),
		)
	}
}

// Disconnect performs the transition to Closed: the user leaves its room (a
// leave that already happened is a no-op) and the connection is torn down.
// Idempotent against double-close.
func (e *Engine) Disconnect(sess *Session) {
	if sess.state == StateClosed {
		return
	}

	if sess.state == StateJoined {
		if e.registry.Leave(sess.spaceID, sess.userID) {
			e.logger.Info("user left space",
				zap.String("space_id", sess.spaceID),
				zap.String("user_id", sess.userID),
			)
		}
	}

	sess.state = StateClosed
	sess.conn.Close()
}
