package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCanOccupy_Bounds(t *testing.T) {
	s := NewSpace("s1", 100, 200)

	assert.True(t, s.CanOccupy(Position{X: 0, Y: 0}))
	assert.True(t, s.CanOccupy(Position{X: 99, Y: 199}))
	assert.False(t, s.CanOccupy(Position{X: 100, Y: 0}))
	assert.False(t, s.CanOccupy(Position{X: 0, Y: 200}))
	assert.False(t, s.CanOccupy(Position{X: -1, Y: 0}))
	assert.False(t, s.CanOccupy(Position{X: 200000, Y: 200000}))
}

func TestCanOccupy_StaticCells(t *testing.T) {
	s := NewSpace("s1", 10, 10)
	s.Block(4, 4, 2, 1)

	assert.False(t, s.CanOccupy(Position{X: 4, Y: 4}))
	assert.False(t, s.CanOccupy(Position{X: 5, Y: 4}))
	assert.True(t, s.CanOccupy(Position{X: 6, Y: 4}))
	assert.True(t, s.CanOccupy(Position{X: 4, Y: 5}))
}

func TestIsStep(t *testing.T) {
	from := Position{X: 5, Y: 5}

	assert.True(t, IsStep(from, Position{X: 6, Y: 5}))
	assert.True(t, IsStep(from, Position{X: 4, Y: 5}))
	assert.True(t, IsStep(from, Position{X: 5, Y: 6}))
	assert.True(t, IsStep(from, Position{X: 5, Y: 4}))

	// Diagonal, jump, and no-op are not steps.
	assert.False(t, IsStep(from, Position{X: 6, Y: 6}))
	assert.False(t, IsStep(from, Position{X: 5, Y: 7}))
	assert.False(t, IsStep(from, Position{X: 7, Y: 5}))
	assert.False(t, IsStep(from, from))
}

func TestSpawn_Deterministic(t *testing.T) {
	s := NewSpace("s1", 3, 3)

	pos, ok := s.Spawn(nil)
	require.True(t, ok)
	assert.Equal(t, Position{X: 0, Y: 0}, pos)

	// Blocking the first row pushes the spawn to the next row.
	s.Block(0, 0, 3, 1)
	pos, ok = s.Spawn(nil)
	require.True(t, ok)
	assert.Equal(t, Position{X: 0, Y: 1}, pos)
}

func TestSpawn_SkipsTakenCells(t *testing.T) {
	s := NewSpace("s1", 2, 2)
	taken := map[Position]bool{
		{X: 0, Y: 0}: true,
		{X: 1, Y: 0}: true,
	}

	pos, ok := s.Spawn(taken)
	require.True(t, ok)
	assert.Equal(t, Position{X: 0, Y: 1}, pos)
}

func TestSpawn_FullSpace(t *testing.T) {
	s := NewSpace("s1", 2, 1)
	s.Block(0, 0, 2, 1)

	_, ok := s.Spawn(nil)
	assert.False(t, ok)
}

func TestPropertySpawnIsAlwaysOccupiable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 20).Draw(t, "width")
		h := rapid.IntRange(1, 20).Draw(t, "height")
		s := NewSpace("s", w, h)

		blocked := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) Position {
			return Position{
				X: rapid.IntRange(0, w-1).Draw(t, "bx"),
				Y: rapid.IntRange(0, h-1).Draw(t, "by"),
			}
		}), 0, w*h-1).Draw(t, "blocked")
		for _, p := range blocked {
			s.Static[p] = true
		}

		pos, ok := s.Spawn(nil)
		if len(s.Static) < w*h {
			if !ok {
				t.Fatalf("spawn failed with %d free cells", w*h-len(s.Static))
			}
			if !s.CanOccupy(pos) {
				t.Fatalf("spawn returned unoccupiable cell %+v", pos)
			}
		}
	})
}

func TestPropertyStepNeverExceedsOneCell(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := Position{
			X: rapid.IntRange(-50, 50).Draw(t, "fx"),
			Y: rapid.IntRange(-50, 50).Draw(t, "fy"),
		}
		to := Position{
			X: rapid.IntRange(-50, 50).Draw(t, "tx"),
			Y: rapid.IntRange(-50, 50).Draw(t, "ty"),
		}

		dist := abs(from.X-to.X) + abs(from.Y-to.Y)
		if IsStep(from, to) != (dist == 1) {
			t.Fatalf("IsStep(%+v, %+v) disagrees with manhattan distance %d", from, to, dist)
		}
	})
}
