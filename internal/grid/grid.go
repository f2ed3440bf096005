// Package grid provides pure spatial validation for spaces: boundary checks,
// static obstacle checks, single-step movement legality, and deterministic
// spawn selection. Nothing in this package holds mutable state.
package grid

// Position is an integer cell coordinate within a space.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Space holds the immutable spatial metadata of one space: its dimensions and
// the set of cells covered by static elements.
type Space struct {
	ID     string
	Width  int
	Height int
	// Static is the set of cells occupied by static elements. Cells outside
	// the space bounds may appear here; they are harmless because the bounds
	// check rejects them first.
	Static map[Position]bool
}

// NewSpace creates a Space with the given dimensions and no static cells.
//
// Precondition: width and height must be positive.
func NewSpace(id string, width, height int) Space {
	return Space{
		ID:     id,
		Width:  width,
		Height: height,
		Static: make(map[Position]bool),
	}
}

// Block marks the rectangle anchored at (x, y) with the given dimensions as
// statically occupied. Used when expanding placed elements into cells.
//
// Postcondition: every cell in [x, x+w) x [y, y+h) is in Static.
func (s Space) Block(x, y, w, h int) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			s.Static[Position{X: x + dx, Y: y + dy}] = true
		}
	}
}

// InBounds reports whether pos lies within [0, width) x [0, height).
func (s Space) InBounds(pos Position) bool {
	return pos.X >= 0 && pos.X < s.Width && pos.Y >= 0 && pos.Y < s.Height
}

// CanOccupy reports whether pos is a legal standing cell: inside the space
// bounds and not covered by a static element. Occupancy by other live users
// is the room's concern, not the grid's.
func (s Space) CanOccupy(pos Position) bool {
	if !s.InBounds(pos) {
		return false
	}
	return !s.Static[pos]
}

// IsStep reports whether moving from one position to other is a single
// orthogonal step: Manhattan distance exactly 1. Diagonals and multi-cell
// jumps are not steps, regardless of where they land.
func IsStep(from, to Position) bool {
	return abs(from.X-to.X)+abs(from.Y-to.Y) == 1
}

// Spawn returns the first free cell in (y, x) lexicographic order, skipping
// static cells and any cell present in taken. The deterministic order keeps
// spawn positions reproducible for a given room population.
//
// Postcondition: returns (pos, true) with CanOccupy(pos) and !taken[pos], or
// (zero, false) when the space is full.
func (s Space) Spawn(taken map[Position]bool) (Position, bool) {
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			pos := Position{X: x, Y: y}
			if s.Static[pos] || taken[pos] {
				continue
			}
			return pos, true
		}
	}
	return Position{}, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
