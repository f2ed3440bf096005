package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cjmeyer/gridverse/internal/grid"
)

// ErrSpaceNotFound is returned when a space lookup yields no results.
var ErrSpaceNotFound = errors.New("space not found")

// ErrNotSpaceOwner is returned when a mutation is attempted by a user who
// does not own the space.
var ErrNotSpaceOwner = errors.New("not the space owner")

// ErrSpaceElementNotFound is returned when a placed element lookup yields no
// results.
var ErrSpaceElementNotFound = errors.New("space element not found")

// ErrPlacementOverlap is returned when a static element placement would cover
// a cell already covered by another static element.
var ErrPlacementOverlap = errors.New("element placement overlaps a static element")

// Space is a user-owned instance of a grid world.
type Space struct {
	ID        string
	Name      string
	OwnerID   string
	Thumbnail *string
	Width     int
	Height    int
	Elements  []SpaceElement
}

// SpaceElement is an element placed inside a space, joined with its
// definition so callers can render and collision-check without extra lookups.
type SpaceElement struct {
	ID      string
	Element Element
	X       int
	Y       int
}

// SpaceRepository provides space persistence operations.
type SpaceRepository struct {
	db *pgxpool.Pool
}

// NewSpaceRepository creates a SpaceRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSpaceRepository(db *pgxpool.Pool) *SpaceRepository {
	return &SpaceRepository{db: db}
}

// Create inserts a blank space with the given dimensions.
//
// Precondition: width and height must be positive; ownerID must reference an
// existing account.
// Postcondition: Returns the created Space with ID set.
func (r *SpaceRepository) Create(ctx context.Context, ownerID, name string, width, height int) (Space, error) {
	if width < 1 || height < 1 {
		return Space{}, fmt.Errorf("space dimensions must be positive, got %dx%d", width, height)
	}

	sp := Space{Name: name, OwnerID: ownerID, Width: width, Height: height, Elements: []SpaceElement{}}
	err := r.db.QueryRow(ctx,
		`INSERT INTO spaces (id, name, owner_id, width, height)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		uuid.NewString(), name, ownerID, width, height,
	).Scan(&sp.ID)
	if err != nil {
		return Space{}, fmt.Errorf("inserting space: %w", err)
	}
	return sp, nil
}

// CreateFromMap inserts a space sized from a map template and copies the
// template's default element placements, all in one transaction.
//
// Precondition: ownerID must reference an existing account.
// Postcondition: Returns the created Space with the copied placements, or
// ErrMapNotFound without persisting anything.
func (r *SpaceRepository) CreateFromMap(ctx context.Context, ownerID, name, mapID string) (Space, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Space{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sp := Space{Name: name, OwnerID: ownerID, Elements: []SpaceElement{}}
	err = tx.QueryRow(ctx,
		`SELECT thumbnail, width, height FROM maps WHERE id = $1`,
		mapID,
	).Scan(&sp.Thumbnail, &sp.Width, &sp.Height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Space{}, ErrMapNotFound
		}
		return Space{}, fmt.Errorf("querying map: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO spaces (id, name, owner_id, thumbnail, width, height)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		uuid.NewString(), name, ownerID, sp.Thumbnail, sp.Width, sp.Height,
	).Scan(&sp.ID)
	if err != nil {
		return Space{}, fmt.Errorf("inserting space: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT me.element_id, me.x, me.y, e.image_url, e.width, e.height, e.static
		 FROM map_elements me
		 JOIN elements e ON e.id = me.element_id
		 WHERE me.map_id = $1
		 ORDER BY me.id`,
		mapID,
	)
	if err != nil {
		return Space{}, fmt.Errorf("querying map elements: %w", err)
	}

	type placement struct {
		el   Element
		x, y int
	}
	var placements []placement
	for rows.Next() {
		var p placement
		if err := rows.Scan(&p.el.ID, &p.x, &p.y, &p.el.ImageURL, &p.el.Width, &p.el.Height, &p.el.Static); err != nil {
			rows.Close()
			return Space{}, fmt.Errorf("scanning map element: %w", err)
		}
		placements = append(placements, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Space{}, fmt.Errorf("iterating map elements: %w", err)
	}

	for _, p := range placements {
		se := SpaceElement{Element: p.el, X: p.x, Y: p.y}
		err = tx.QueryRow(ctx,
			`INSERT INTO space_elements (id, space_id, element_id, x, y)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			uuid.NewString(), sp.ID, p.el.ID, p.x, p.y,
		).Scan(&se.ID)
		if err != nil {
			return Space{}, fmt.Errorf("inserting space element: %w", err)
		}
		sp.Elements = append(sp.Elements, se)
	}

	if err := tx.Commit(ctx); err != nil {
		return Space{}, fmt.Errorf("committing transaction: %w", err)
	}
	return sp, nil
}

// Get retrieves a space and its placed elements.
//
// Postcondition: Returns the Space or ErrSpaceNotFound.
func (r *SpaceRepository) Get(ctx context.Context, id string) (Space, error) {
	var sp Space
	err := r.db.QueryRow(ctx,
		`SELECT id, name, owner_id, thumbnail, width, height FROM spaces WHERE id = $1`,
		id,
	).Scan(&sp.ID, &sp.Name, &sp.OwnerID, &sp.Thumbnail, &sp.Width, &sp.Height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Space{}, ErrSpaceNotFound
		}
		return Space{}, fmt.Errorf("querying space: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT se.id, se.x, se.y, e.id, e.image_url, e.width, e.height, e.static
		 FROM space_elements se
		 JOIN elements e ON e.id = se.element_id
		 WHERE se.space_id = $1
		 ORDER BY se.id`,
		id,
	)
	if err != nil {
		return Space{}, fmt.Errorf("querying space elements: %w", err)
	}
	defer rows.Close()

	sp.Elements = []SpaceElement{}
	for rows.Next() {
		var se SpaceElement
		if err := rows.Scan(&se.ID, &se.X, &se.Y, &se.Element.ID, &se.Element.ImageURL, &se.Element.Width, &se.Element.Height, &se.Element.Static); err != nil {
			return Space{}, fmt.Errorf("scanning space element: %w", err)
		}
		sp.Elements = append(sp.Elements, se)
	}
	if err := rows.Err(); err != nil {
		return Space{}, fmt.Errorf("iterating space elements: %w", err)
	}
	return sp, nil
}

// ListByOwner returns all spaces owned by the given account, without their
// placed elements.
//
// Postcondition: Returns a non-nil slice, empty when the owner has no spaces.
func (r *SpaceRepository) ListByOwner(ctx context.Context, ownerID string) ([]Space, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, owner_id, thumbnail, width, height
		 FROM spaces WHERE owner_id = $1 ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying spaces: %w", err)
	}
	defer rows.Close()

	out := []Space{}
	for rows.Next() {
		var sp Space
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.OwnerID, &sp.Thumbnail, &sp.Width, &sp.Height); err != nil {
			return nil, fmt.Errorf("scanning space: %w", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spaces: %w", err)
	}
	return out, nil
}

// Delete removes a space and its placed elements. Only the owner may delete.
//
// Postcondition: Returns ErrSpaceNotFound if no space has the given id, or
// ErrNotSpaceOwner if requesterID does not own it.
func (r *SpaceRepository) Delete(ctx context.Context, id, requesterID string) error {
	var ownerID string
	err := r.db.QueryRow(ctx,
		`SELECT owner_id FROM spaces WHERE id = $1`,
		id,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSpaceNotFound
		}
		return fmt.Errorf("querying space: %w", err)
	}
	if ownerID != requesterID {
		return ErrNotSpaceOwner
	}

	// space_elements are removed by the ON DELETE CASCADE constraint
	if _, err := r.db.Exec(ctx, `DELETE FROM spaces WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting space: %w", err)
	}
	return nil
}

// AddElement places an element in a space, rejecting placements whose
// footprint falls outside the space bounds and static placements whose
// footprint overlaps an existing static element.
//
// Postcondition: Returns the placement id, or ErrSpaceNotFound /
// ErrElementNotFound / ErrPlacementOutOfBounds / ErrPlacementOverlap.
func (r *SpaceRepository) AddElement(ctx context.Context, spaceID, elementID string, x, y int) (string, error) {
	var width, height int
	err := r.db.QueryRow(ctx,
		`SELECT width, height FROM spaces WHERE id = $1`,
		spaceID,
	).Scan(&width, &height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSpaceNotFound
		}
		return "", fmt.Errorf("querying space: %w", err)
	}

	var el Element
	err = r.db.QueryRow(ctx,
		`SELECT width, height, static FROM elements WHERE id = $1`,
		elementID,
	).Scan(&el.Width, &el.Height, &el.Static)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrElementNotFound
		}
		return "", fmt.Errorf("querying element: %w", err)
	}

	if x < 0 || y < 0 || x+el.Width > width || y+el.Height > height {
		return "", ErrPlacementOutOfBounds
	}

	if el.Static {
		g, err := r.ResolveSpace(ctx, spaceID)
		if err != nil {
			return "", err
		}
		for dy := 0; dy < el.Height; dy++ {
			for dx := 0; dx < el.Width; dx++ {
				if g.Static[grid.Position{X: x + dx, Y: y + dy}] {
					return "", ErrPlacementOverlap
				}
			}
		}
	}

	var id string
	err = r.db.QueryRow(ctx,
		`INSERT INTO space_elements (id, space_id, element_id, x, y)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		uuid.NewString(), spaceID, elementID, x, y,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting space element: %w", err)
	}
	return id, nil
}

// RemoveElement deletes a placed element from a space.
//
// Postcondition: Returns ErrSpaceElementNotFound if no placement matches.
func (r *SpaceRepository) RemoveElement(ctx context.Context, spaceID, placementID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM space_elements WHERE id = $1 AND space_id = $2`,
		placementID, spaceID,
	)
	if err != nil {
		return fmt.Errorf("deleting space element: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSpaceElementNotFound
	}
	return nil
}

// ResolveSpace loads a space's geometry for movement validation: its bounds
// plus every cell covered by a static placed element.
//
// Postcondition: Returns a grid.Space or ErrSpaceNotFound.
func (r *SpaceRepository) ResolveSpace(ctx context.Context, id string) (grid.Space, error) {
	sp, err := r.Get(ctx, id)
	if err != nil {
		return grid.Space{}, err
	}

	g := grid.NewSpace(sp.ID, sp.Width, sp.Height)
	for _, se := range sp.Elements {
		if se.Element.Static {
			g.Block(se.X, se.Y, se.Element.Width, se.Element.Height)
		}
	}
	return g, nil
}
