// Package api exposes the platform's HTTP surface: account signup and
// signin, user metadata, avatar and element catalogs, admin content
// management, and space CRUD. Realtime sessions are served separately over
// the websocket endpoint.
package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

// AccountStore is the account persistence surface the handlers need.
// *postgres.AccountRepository satisfies it.
type AccountStore interface {
	Create(ctx context.Context, username, password, role string) (postgres.Account, error)
	Authenticate(ctx context.Context, username, password string) (postgres.Account, error)
	SetAvatar(ctx context.Context, accountID, avatarID string) error
	MetadataBulk(ctx context.Context, ids []string) ([]postgres.AccountMetadata, error)
}

// AvatarStore is the avatar persistence surface the handlers need.
type AvatarStore interface {
	Create(ctx context.Context, name, imageURL string) (postgres.Avatar, error)
	List(ctx context.Context) ([]postgres.Avatar, error)
}

// ElementStore is the element persistence surface the handlers need.
type ElementStore interface {
	Create(ctx context.Context, imageURL string, width, height int, static bool) (postgres.Element, error)
	UpdateImage(ctx context.Context, id, imageURL string) error
	List(ctx context.Context) ([]postgres.Element, error)
}

// MapStore is the map template persistence surface the handlers need.
type MapStore interface {
	Create(ctx context.Context, name, thumbnail string, width, height int, placements []postgres.MapPlacement) (postgres.GameMap, error)
}

// SpaceStore is the space persistence surface the handlers need.
type SpaceStore interface {
	Create(ctx context.Context, ownerID, name string, width, height int) (postgres.Space, error)
	CreateFromMap(ctx context.Context, ownerID, name, mapID string) (postgres.Space, error)
	Get(ctx context.Context, id string) (postgres.Space, error)
	ListByOwner(ctx context.Context, ownerID string) ([]postgres.Space, error)
	Delete(ctx context.Context, id, requesterID string) error
	AddElement(ctx context.Context, spaceID, elementID string, x, y int) (string, error)
	RemoveElement(ctx context.Context, spaceID, placementID string) error
}

// TokenIssuer mints session tokens on signin. *auth.Manager satisfies it.
type TokenIssuer interface {
	Issue(userID, role string) (string, error)
}

// Handler bundles the stores and services behind the HTTP surface.
type Handler struct {
	accounts AccountStore
	avatars  AvatarStore
	elements ElementStore
	maps     MapStore
	spaces   SpaceStore
	tokens   TokenIssuer
	logger   *zap.Logger
}

// NewHandler creates a Handler.
//
// Precondition: all stores, the issuer, and the logger must be non-nil.
func NewHandler(
	accounts AccountStore,
	avatars AvatarStore,
	elements ElementStore,
	maps MapStore,
	spaces SpaceStore,
	tokens TokenIssuer,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		accounts: accounts,
		avatars:  avatars,
		elements: elements,
		maps:     maps,
		spaces:   spaces,
		tokens:   tokens,
		logger:   logger,
	}
}
