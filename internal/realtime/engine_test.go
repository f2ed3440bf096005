package realtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/auth"
	"github.com/cjmeyer/gridverse/internal/grid"
)

// fakeVerifier maps token strings directly to identities.
type fakeVerifier struct {
	tokens map[string]auth.Claims
}

func (f *fakeVerifier) Verify(token string) (auth.Claims, error) {
	claims, ok := f.tokens[token]
	if !ok {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return claims, nil
}

// fakeResolver serves fixed space metadata.
type fakeResolver struct {
	spaces map[string]grid.Space
}

func (f *fakeResolver) ResolveSpace(_ context.Context, spaceID string) (grid.Space, error) {
	space, ok := f.spaces[spaceID]
	if !ok {
		return grid.Space{}, ErrSpaceNotFound
	}
	return space, nil
}

func newTestEngine(t *testing.T) (*Engine, *Registry) {
	t.Helper()
	reg := NewRegistry(zap.NewNop())
	verifier := &fakeVerifier{tokens: map[string]auth.Claims{
		"tok-u1": {UserID: "u1", Role: "user"},
		"tok-u2": {UserID: "u2", Role: "admin"},
	}}
	resolver := &fakeResolver{spaces: map[string]grid.Space{
		"space-1": grid.NewSpace("space-1", 10, 10),
	}}
	return NewEngine(reg, verifier, resolver, zap.NewNop()), reg
}

func frame(msgType, payload string) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"payload":%s}`, msgType, payload))
}

func TestEngine_JoinHappyPath(t *testing.T) {
	engine, reg := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)

	engine.HandleFrame(context.Background(), sess, frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u1"}`))

	assert.Equal(t, StateJoined, sess.State())
	assert.Equal(t, "u1", sess.UserID())
	assert.Equal(t, 1, reg.OccupantCount("space-1"))
	assert.Equal(t, []string{TypeSpaceJoined}, conn.types())
}

func TestEngine_JoinInvalidToken(t *testing.T) {
	engine, reg := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)

	engine.HandleFrame(context.Background(), sess, frame(TypeJoin, `{"spaceId":"space-1","token":"forged"}`))

	assert.Equal(t, StateClosed, sess.State())
	assert.True(t, conn.isClosed())
	assert.Equal(t, 0, reg.OccupantCount("space-1"))
	assert.Equal(t, 1, conn.countType(TypeError))
}

func TestEngine_JoinUnknownSpace(t *testing.T) {
	engine, _ := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)

	engine.HandleFrame(context.Background(), sess, frame(TypeJoin, `{"spaceId":"ghost","token":"tok-u1"}`))

	assert.Equal(t, StateClosed, sess.State())
	assert.True(t, conn.isClosed())
}

func TestEngine_DoubleJoinRefused(t *testing.T) {
	engine, reg := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)
	join := frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u1"}`)

	engine.HandleFrame(context.Background(), sess, join)
	engine.HandleFrame(context.Background(), sess, join)

	// Still joined once; second attempt produced an error frame only.
	assert.Equal(t, StateJoined, sess.State())
	assert.Equal(t, 1, reg.OccupantCount("space-1"))
	assert.Equal(t, 1, conn.countType(TypeError))
}

func TestEngine_MovementBeforeJoin(t *testing.T) {
	engine, _ := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)

	engine.HandleFrame(context.Background(), sess, frame(TypeMovement, `{"x":1,"y":0}`))

	assert.Equal(t, StateUnjoined, sess.State())
	assert.Equal(t, 1, conn.countType(TypeError))
}

func TestEngine_MovementIgnoresClientUserID(t *testing.T) {
	engine, reg := newTestEngine(t)
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	s1 := engine.NewSession(c1)
	s2 := engine.NewSession(c2)

	engine.HandleFrame(context.Background(), s1, frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u1"}`))
	engine.HandleFrame(context.Background(), s2, frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u2"}`))

	// u2 spawned at (1,0) and claims to be u1 in the payload; the server
	// steps u2 to the adjacent cell regardless of the claimed identity.
	engine.HandleFrame(context.Background(), s2, frame(TypeMovement, `{"x":1,"y":1,"userId":"u1"}`))

	pos1, _ := reg.Position("space-1", "u1")
	pos2, _ := reg.Position("space-1", "u2")
	assert.Equal(t, grid.Position{X: 0, Y: 0}, pos1)
	assert.Equal(t, grid.Position{X: 1, Y: 1}, pos2)

	var moved UserInfo
	c1.lastOfType(t, TypeMovement, &moved)
	assert.Equal(t, "u2", moved.UserID)
}

func TestEngine_DisconnectIsIdempotent(t *testing.T) {
	engine, reg := newTestEngine(t)
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	s1 := engine.NewSession(c1)
	s2 := engine.NewSession(c2)

	engine.HandleFrame(context.Background(), s1, frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u1"}`))
	engine.HandleFrame(context.Background(), s2, frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u2"}`))

	engine.Disconnect(s1)
	engine.Disconnect(s1)

	assert.Equal(t, StateClosed, s1.State())
	assert.Equal(t, 1, reg.OccupantCount("space-1"))
	assert.Equal(t, 1, c2.countType(TypeUserLeft))
}

func TestEngine_FramesAfterCloseIgnored(t *testing.T) {
	engine, reg := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)

	engine.Disconnect(sess)
	engine.HandleFrame(context.Background(), sess, frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u1"}`))

	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 0, reg.OccupantCount("space-1"))
}

func TestEngine_MalformedFramesEventuallyClose(t *testing.T) {
	engine, _ := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)

	for i := 0; i < maxValidationFailures; i++ {
		engine.HandleFrame(context.Background(), sess, []byte("garbage"))
	}

	assert.Equal(t, StateClosed, sess.State())
	assert.True(t, conn.isClosed())
}

func TestEngine_ValidFrameResetsOffenceCount(t *testing.T) {
	engine, _ := newTestEngine(t)
	conn := newFakeConn("c1")
	sess := engine.NewSession(conn)

	for i := 0; i < maxValidationFailures-1; i++ {
		engine.HandleFrame(context.Background(), sess, []byte("garbage"))
	}
	engine.HandleFrame(context.Background(), sess, frame(TypeJoin, `{"spaceId":"space-1","token":"tok-u1"}`))
	engine.HandleFrame(context.Background(), sess, []byte("garbage"))

	assert.Equal(t, StateJoined, sess.State())
}
