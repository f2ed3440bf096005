package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMapNotFound is returned when a map lookup yields no results.
var ErrMapNotFound = errors.New("map not found")

// ErrPlacementOutOfBounds is returned when an element placement does not fit
// inside its map or space.
var ErrPlacementOutOfBounds = errors.New("element placement out of bounds")

// GameMap is a reusable space template: fixed dimensions plus a default set
// of placed elements copied into every space created from it.
type GameMap struct {
	ID        string
	Name      string
	Thumbnail string
	Width     int
	Height    int
	Elements  []MapElement
}

// MapElement is an element placement within a map template.
type MapElement struct {
	ID        string
	ElementID string
	X         int
	Y         int
}

// MapPlacement describes a requested element placement when creating a map.
type MapPlacement struct {
	ElementID string
	X         int
	Y         int
}

// MapRepository provides map template persistence operations.
type MapRepository struct {
	db *pgxpool.Pool
}

// NewMapRepository creates a MapRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMapRepository(db *pgxpool.Pool) *MapRepository {
	return &MapRepository{db: db}
}

// Create inserts a map template and its default element placements in a
// single transaction. Every placement is checked against the element's
// footprint so templates never reference cells outside the map.
//
// Precondition: width and height must be positive; every placement's
// ElementID must reference an existing element.
// Postcondition: Returns the created GameMap with ID set, or
// ErrElementNotFound / ErrPlacementOutOfBounds without persisting anything.
func (r *MapRepository) Create(ctx context.Context, name, thumbnail string, width, height int, placements []MapPlacement) (GameMap, error) {
	if width < 1 || height < 1 {
		return GameMap{}, fmt.Errorf("map dimensions must be positive, got %dx%d", width, height)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return GameMap{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	m := GameMap{Name: name, Thumbnail: thumbnail, Width: width, Height: height, Elements: []MapElement{}}
	err = tx.QueryRow(ctx,
		`INSERT INTO maps (id, name, thumbnail, width, height)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		uuid.NewString(), name, thumbnail, width, height,
	).Scan(&m.ID)
	if err != nil {
		return GameMap{}, fmt.Errorf("inserting map: %w", err)
	}

	for _, p := range placements {
		var el Element
		err := tx.QueryRow(ctx,
			`SELECT id, image_url, width, height, static FROM elements WHERE id = $1`,
			p.ElementID,
		).Scan(&el.ID, &el.ImageURL, &el.Width, &el.Height, &el.Static)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return GameMap{}, ErrElementNotFound
			}
			return GameMap{}, fmt.Errorf("querying element: %w", err)
		}

		if p.X < 0 || p.Y < 0 || p.X+el.Width > width || p.Y+el.Height > height {
			return GameMap{}, ErrPlacementOutOfBounds
		}

		me := MapElement{ElementID: p.ElementID, X: p.X, Y: p.Y}
		err = tx.QueryRow(ctx,
			`INSERT INTO map_elements (id, map_id, element_id, x, y)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			uuid.NewString(), m.ID, p.ElementID, p.X, p.Y,
		).Scan(&me.ID)
		if err != nil {
			return GameMap{}, fmt.Errorf("inserting map element: %w", err)
		}
		m.Elements = append(m.Elements, me)
	}

	if err := tx.Commit(ctx); err != nil {
		return GameMap{}, fmt.Errorf("committing transaction: %w", err)
	}
	return m, nil
}

// Get retrieves a map template and its default placements.
//
// Postcondition: Returns the GameMap or ErrMapNotFound.
func (r *MapRepository) Get(ctx context.Context, id string) (GameMap, error) {
	var m GameMap
	err := r.db.QueryRow(ctx,
		`SELECT id, name, thumbnail, width, height FROM maps WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Thumbnail, &m.Width, &m.Height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameMap{}, ErrMapNotFound
		}
		return GameMap{}, fmt.Errorf("querying map: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, element_id, x, y FROM map_elements WHERE map_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return GameMap{}, fmt.Errorf("querying map elements: %w", err)
	}
	defer rows.Close()

	m.Elements = []MapElement{}
	for rows.Next() {
		var me MapElement
		if err := rows.Scan(&me.ID, &me.ElementID, &me.X, &me.Y); err != nil {
			return GameMap{}, fmt.Errorf("scanning map element: %w", err)
		}
		m.Elements = append(m.Elements, me)
	}
	if err := rows.Err(); err != nil {
		return GameMap{}, fmt.Errorf("iterating map elements: %w", err)
	}
	return m, nil
}

// List returns all map templates without their placements.
//
// Postcondition: Returns a non-nil slice, empty when no maps exist.
func (r *MapRepository) List(ctx context.Context) ([]GameMap, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, thumbnail, width, height FROM maps ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying maps: %w", err)
	}
	defer rows.Close()

	out := []GameMap{}
	for rows.Next() {
		var m GameMap
		if err := rows.Scan(&m.ID, &m.Name, &m.Thumbnail, &m.Width, &m.Height); err != nil {
			return nil, fmt.Errorf("scanning map: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating maps: %w", err)
	}
	return out, nil
}
