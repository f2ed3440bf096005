package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Role constants for account privilege levels.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole reports whether role is a recognised privilege level.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// ErrInvalidRole is returned when an unrecognised role string is supplied.
var ErrInvalidRole = errors.New("invalid role")

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when attempting to create a duplicate username.
var ErrAccountExists = errors.New("account already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Account represents a registered user in the database.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	AvatarID     *string
	CreatedAt    time.Time
}

// AccountMetadata is the public slice of an account exposed to other users.
type AccountMetadata struct {
	ID        string
	AvatarURL *string
}

// AccountRepository provides account persistence operations.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account with a bcrypt-hashed password.
//
// Precondition: username and password must be non-empty; role must be valid.
// Postcondition: Returns the created Account with ID and CreatedAt set,
// or ErrAccountExists if the username is taken.
func (r *AccountRepository) Create(ctx context.Context, username, password, role string) (Account, error) {
	if !ValidRole(role) {
		return Account{}, ErrInvalidRole
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password: %w", err)
	}

	var acct Account
	err = r.db.QueryRow(ctx,
		`INSERT INTO accounts (id, username, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, password_hash, role, avatar_id, created_at`,
		uuid.NewString(), username, hash, role,
	).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role, &acct.AvatarID, &acct.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("inserting account: %w", err)
	}

	return acct, nil
}

// Authenticate verifies credentials and returns the matching account.
//
// Precondition: username and password must be non-empty.
// Postcondition: Returns the Account if credentials are valid,
// ErrAccountNotFound if the username doesn't exist,
// or ErrInvalidCredentials if the password is wrong.
func (r *AccountRepository) Authenticate(ctx context.Context, username, password string) (Account, error) {
	acct, err := r.GetByUsername(ctx, username)
	if err != nil {
		return Account{}, err
	}

	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}

	return acct, nil
}

// GetByID retrieves an account by its id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns the Account or ErrAccountNotFound.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (Account, error) {
	var acct Account
	err := r.db.QueryRow(ctx,
		`SELECT id, username, password_hash, role, avatar_id, created_at
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role, &acct.AvatarID, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	return acct, nil
}

// GetByUsername retrieves an account by username.
//
// Precondition: username must be non-empty.
// Postcondition: Returns the Account or ErrAccountNotFound.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	var acct Account
	err := r.db.QueryRow(ctx,
		`SELECT id, username, password_hash, role, avatar_id, created_at
		 FROM accounts WHERE username = $1`,
		username,
	).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role, &acct.AvatarID, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	return acct, nil
}

// SetRole updates the role for the given account.
//
// Precondition: role must be a valid role string (use ValidRole to check).
// Postcondition: The account's role is updated, or ErrInvalidRole / ErrAccountNotFound is returned.
func (r *AccountRepository) SetRole(ctx context.Context, accountID, role string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET role = $1 WHERE id = $2`,
		role, accountID,
	)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetAvatar assigns an avatar to the given account.
//
// Precondition: avatarID must reference an existing avatar.
// Postcondition: The account's avatar is updated, or ErrAvatarNotFound /
// ErrAccountNotFound is returned.
func (r *AccountRepository) SetAvatar(ctx context.Context, accountID, avatarID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET avatar_id = $1 WHERE id = $2`,
		avatarID, accountID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrAvatarNotFound
		}
		return fmt.Errorf("updating avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// MetadataBulk retrieves public metadata for the given account ids. Unknown
// ids are omitted from the result rather than reported as errors.
//
// Postcondition: Returns at most one entry per distinct id in ids.
func (r *AccountRepository) MetadataBulk(ctx context.Context, ids []string) ([]AccountMetadata, error) {
	if len(ids) == 0 {
		return []AccountMetadata{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT a.id, av.image_url
		 FROM accounts a
		 LEFT JOIN avatars av ON av.id = a.avatar_id
		 WHERE a.id = ANY($1)
		 ORDER BY a.id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("querying account metadata: %w", err)
	}
	defer rows.Close()

	out := []AccountMetadata{}
	for rows.Next() {
		var m AccountMetadata
		if err := rows.Scan(&m.ID, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("scanning account metadata: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account metadata: %w", err)
	}
	return out, nil
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
//
// Postcondition: Returns true if password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
