package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAvatarNotFound is returned when an avatar lookup yields no results.
var ErrAvatarNotFound = errors.New("avatar not found")

// Avatar is a selectable character appearance.
type Avatar struct {
	ID       string
	Name     string
	ImageURL string
}

// AvatarRepository provides avatar persistence operations.
type AvatarRepository struct {
	db *pgxpool.Pool
}

// NewAvatarRepository creates an AvatarRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAvatarRepository(db *pgxpool.Pool) *AvatarRepository {
	return &AvatarRepository{db: db}
}

// Create inserts a new avatar.
//
// Precondition: name and imageURL must be non-empty.
// Postcondition: Returns the created Avatar with ID set.
func (r *AvatarRepository) Create(ctx context.Context, name, imageURL string) (Avatar, error) {
	var av Avatar
	err := r.db.QueryRow(ctx,
		`INSERT INTO avatars (id, name, image_url)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, image_url`,
		uuid.NewString(), name, imageURL,
	).Scan(&av.ID, &av.Name, &av.ImageURL)
	if err != nil {
		return Avatar{}, fmt.Errorf("inserting avatar: %w", err)
	}
	return av, nil
}

// Get retrieves an avatar by id.
//
// Postcondition: Returns the Avatar or ErrAvatarNotFound.
func (r *AvatarRepository) Get(ctx context.Context, id string) (Avatar, error) {
	var av Avatar
	err := r.db.QueryRow(ctx,
		`SELECT id, name, image_url FROM avatars WHERE id = $1`,
		id,
	).Scan(&av.ID, &av.Name, &av.ImageURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Avatar{}, ErrAvatarNotFound
		}
		return Avatar{}, fmt.Errorf("querying avatar: %w", err)
	}
	return av, nil
}

// List returns all avatars ordered by name.
//
// Postcondition: Returns a non-nil slice, empty when no avatars exist.
func (r *AvatarRepository) List(ctx context.Context) ([]Avatar, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, image_url FROM avatars ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying avatars: %w", err)
	}
	defer rows.Close()

	out := []Avatar{}
	for rows.Next() {
		var av Avatar
		if err := rows.Scan(&av.ID, &av.Name, &av.ImageURL); err != nil {
			return nil, fmt.Errorf("scanning avatar: %w", err)
		}
		out = append(out, av)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating avatars: %w", err)
	}
	return out, nil
}
