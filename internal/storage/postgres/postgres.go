package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steveyegge/aim/internal/task"
)

// PostgresStorage implements the Storage interface using PostgreSQL
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "aim",
		User:            "aim",
		SSLMode:         "prefer",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage backend with connection pooling
func New(ctx context.Context, cfg *Config) (*PostgresStorage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// SaveTask inserts or replaces the full task document. The updated_at
// timestamp is bumped on every save.
func (s *PostgresStorage) SaveTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	constraints, err := json.Marshal(t.Constraints)
	if err != nil {
		return fmt.Errorf("failed to marshal constraints: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, description, constraints, status, final_output, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			constraints = EXCLUDED.constraints,
			status = EXCLUDED.status,
			final_output = EXCLUDED.final_output,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`,
		t.ID, t.Description, constraints, string(t.Status),
		t.FinalOutput, doc, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID
func (s *PostgresStorage) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM tasks WHERE id = $1
	`, id).Scan(&doc)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}

	return &t, nil
}

// ListTasks returns tasks matching the filter, newest first
func (s *PostgresStorage) ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	query := `SELECT data FROM tasks`
	args := []interface{}{}

	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var t task.Task
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// UpdateTaskStatus sets the task status and bumps updated_at. The stored
// document is rewritten so the data column never disagrees with the
// status column.
func (s *PostgresStorage) UpdateTaskStatus(ctx context.Context, id string, status task.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}

	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	t.Status = status

	return s.SaveTask(ctx, t)
}

// DeleteTask removes a task
func (s *PostgresStorage) DeleteTask(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}

	return nil
}

// Close closes the connection pool and releases all resources
func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
