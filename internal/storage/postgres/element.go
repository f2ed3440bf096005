package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrElementNotFound is returned when an element lookup yields no results.
var ErrElementNotFound = errors.New("element not found")

// Element is a placeable object definition: a rectangle of cells that may or
// may not block movement.
type Element struct {
	ID       string
	ImageURL string
	Width    int
	Height   int
	Static   bool
}

// ElementRepository provides element persistence operations.
type ElementRepository struct {
	db *pgxpool.Pool
}

// NewElementRepository creates an ElementRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewElementRepository(db *pgxpool.Pool) *ElementRepository {
	return &ElementRepository{db: db}
}

// Create inserts a new element definition.
//
// Precondition: width and height must be positive; imageURL must be non-empty.
// Postcondition: Returns the created Element with ID set.
func (r *ElementRepository) Create(ctx context.Context, imageURL string, width, height int, static bool) (Element, error) {
	if width < 1 || height < 1 {
		return Element{}, fmt.Errorf("element dimensions must be positive, got %dx%d", width, height)
	}

	var el Element
	err := r.db.QueryRow(ctx,
		`INSERT INTO elements (id, image_url, width, height, static)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, image_url, width, height, static`,
		uuid.NewString(), imageURL, width, height, static,
	).Scan(&el.ID, &el.ImageURL, &el.Width, &el.Height, &el.Static)
	if err != nil {
		return Element{}, fmt.Errorf("inserting element: %w", err)
	}
	return el, nil
}

// UpdateImage replaces the image URL of an existing element. Dimensions and
// the static flag are immutable once maps and spaces may reference them.
//
// Postcondition: Returns ErrElementNotFound if no element has the given id.
func (r *ElementRepository) UpdateImage(ctx context.Context, id, imageURL string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE elements SET image_url = $1 WHERE id = $2`,
		imageURL, id,
	)
	if err != nil {
		return fmt.Errorf("updating element: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrElementNotFound
	}
	return nil
}

// Get retrieves an element by id.
//
// Postcondition: Returns the Element or ErrElementNotFound.
func (r *ElementRepository) Get(ctx context.Context, id string) (Element, error) {
	var el Element
	err := r.db.QueryRow(ctx,
		`SELECT id, image_url, width, height, static FROM elements WHERE id = $1`,
		id,
	).Scan(&el.ID, &el.ImageURL, &el.Width, &el.Height, &el.Static)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Element{}, ErrElementNotFound
		}
		return Element{}, fmt.Errorf("querying element: %w", err)
	}
	return el, nil
}

// List returns all element definitions.
//
// Postcondition: Returns a non-nil slice, empty when no elements exist.
func (r *ElementRepository) List(ctx context.Context) ([]Element, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, image_url, width, height, static FROM elements ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying elements: %w", err)
	}
	defer rows.Close()

	out := []Element{}
	for rows.Next() {
		var el Element
		if err := rows.Scan(&el.ID, &el.ImageURL, &el.Width, &el.Height, &el.Static); err != nil {
			return nil, fmt.Errorf("scanning element: %w", err)
		}
		out = append(out, el)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating elements: %w", err)
	}
	return out, nil
}
