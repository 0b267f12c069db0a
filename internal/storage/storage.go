// Package storage persists tasks across CLI invocations. The default
// backend is an embedded SQLite database; a PostgreSQL backend is
// available for shared deployments. Both store the whole task document
// as JSON next to a few scalar columns used for filtering, so the
// schema tracks the Go types instead of migrations.
package storage

import (
	"context"
	"fmt"

	"github.com/steveyegge/aim/internal/storage/postgres"
	"github.com/steveyegge/aim/internal/storage/sqlite"
	"github.com/steveyegge/aim/internal/task"
)

// ErrNotFound reports that no task with the given ID exists. Backends
// wrap it so callers can test with errors.Is.
var ErrNotFound = task.ErrNotFound

// Storage defines the interface for task storage backends
type Storage interface {
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status task.Status) error
	DeleteTask(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// Backend selects which database engine backs the store
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config holds database configuration
type Config struct {
	// Backend selects the engine. Empty means SQLite.
	Backend Backend

	// Path is the SQLite database file path
	// Default: "~/.aim/aim.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string

	// Postgres holds connection settings when Backend is "postgres"
	Postgres *postgres.Config
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
	}
}

// NewStorage creates a storage backend from the config. A nil config or
// an empty SQLite path falls back to the default database location.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case BackendPostgres:
		return postgres.New(ctx, cfg.Postgres)
	case BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			var err error
			path, err = DefaultPath()
			if err != nil {
				return nil, err
			}
		}
		return sqlite.New(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
