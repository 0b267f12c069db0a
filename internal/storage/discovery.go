package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath returns the default database location, ~/.aim/aim.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".aim", "aim.db"), nil
}

// DiscoverPath resolves which database file to use. Precedence: the
// explicit path (--db flag), the AIM_DB environment variable, the
// configured path, then ~/.aim/aim.db.
func DiscoverPath(explicit, configured string) (string, error) {
	if explicit != "" {
		return expandPath(explicit)
	}

	// Environment variable allows test isolation without touching config.
	// Special values like ":memory:" pass through untouched.
	if dbPath := os.Getenv("AIM_DB"); dbPath != "" {
		return dbPath, nil
	}

	if configured != "" {
		return expandPath(configured)
	}

	return DefaultPath()
}

// expandPath resolves a leading ~/ against the user's home directory
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// Init creates the database file and schema for a fresh installation
// and returns the path. Unlike NewStorage it refuses to touch an
// existing database so `aim init` never silently reuses old state.
func Init(ctx context.Context, path string) (string, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return "", err
		}
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("database already exists: %s", path)
	}

	store, err := NewStorage(ctx, &Config{Path: path})
	if err != nil {
		return "", err
	}
	if err := store.Close(); err != nil {
		return "", fmt.Errorf("failed to close database: %w", err)
	}

	return path, nil
}
