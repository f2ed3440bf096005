// Package testutil provides test helpers including container management.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cjmeyer/gridverse/internal/config"
	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns
// a connected Pool.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	pc := &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	return pc
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: All application tables exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE TABLE IF NOT EXISTS avatars (
			id        VARCHAR(36)  PRIMARY KEY,
			name      VARCHAR(64)  NOT NULL,
			image_url TEXT         NOT NULL
		);
		CREATE TABLE IF NOT EXISTS accounts (
			id            VARCHAR(36)  PRIMARY KEY,
			username      VARCHAR(64)  NOT NULL UNIQUE,
			password_hash TEXT         NOT NULL,
			role          VARCHAR(16)  NOT NULL DEFAULT 'user',
			avatar_id     VARCHAR(36)  REFERENCES avatars (id),
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts (username);
		CREATE TABLE IF NOT EXISTS elements (
			id        VARCHAR(36) PRIMARY KEY,
			image_url TEXT        NOT NULL,
			width     INTEGER     NOT NULL CHECK (width > 0),
			height    INTEGER     NOT NULL CHECK (height > 0),
			static    BOOLEAN     NOT NULL DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS maps (
			id        VARCHAR(36) PRIMARY KEY,
			name      VARCHAR(64) NOT NULL,
			thumbnail TEXT        NOT NULL,
			width     INTEGER     NOT NULL CHECK (width > 0),
			height    INTEGER     NOT NULL CHECK (height > 0)
		);
		CREATE TABLE IF NOT EXISTS map_elements (
			id         VARCHAR(36) PRIMARY KEY,
			map_id     VARCHAR(36) NOT NULL REFERENCES maps (id) ON DELETE CASCADE,
			element_id VARCHAR(36) NOT NULL REFERENCES elements (id),
			x          INTEGER     NOT NULL CHECK (x >= 0),
			y          INTEGER     NOT NULL CHECK (y >= 0)
		);
		CREATE TABLE IF NOT EXISTS spaces (
			id        VARCHAR(36) PRIMARY KEY,
			name      VARCHAR(64) NOT NULL,
			owner_id  VARCHAR(36) NOT NULL REFERENCES accounts (id),
			thumbnail TEXT,
			width     INTEGER     NOT NULL CHECK (width > 0),
			height    INTEGER     NOT NULL CHECK (height > 0)
		);
		CREATE TABLE IF NOT EXISTS space_elements (
			id         VARCHAR(36) PRIMARY KEY,
			space_id   VARCHAR(36) NOT NULL REFERENCES spaces (id) ON DELETE CASCADE,
			element_id VARCHAR(36) NOT NULL REFERENCES elements (id),
			x          INTEGER     NOT NULL CHECK (x >= 0),
			y          INTEGER     NOT NULL CHECK (y >= 0)
		);
	`

	_, err := pc.RawPool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// NewPool starts a PostgreSQL container with the schema applied and returns
// its raw pool. Convenience wrapper for repository tests.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc.RawPool
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pc.Config.User, pc.Config.Password,
		pc.Config.Host, pc.Config.Port,
		pc.Config.Name, pc.Config.SSLMode,
	)
}
