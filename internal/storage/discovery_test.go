package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/aim/internal/task"
)

func TestDiscoverPathPrecedence(t *testing.T) {
	t.Setenv("AIM_DB", "/from/env/aim.db")

	// Explicit flag beats everything
	path, err := DiscoverPath("/from/flag/aim.db", "/from/config/aim.db")
	if err != nil {
		t.Fatalf("DiscoverPath failed: %v", err)
	}
	if path != "/from/flag/aim.db" {
		t.Errorf("Expected flag path to win, got %s", path)
	}

	// Environment beats config
	path, err = DiscoverPath("", "/from/config/aim.db")
	if err != nil {
		t.Fatalf("DiscoverPath failed: %v", err)
	}
	if path != "/from/env/aim.db" {
		t.Errorf("Expected env path to win, got %s", path)
	}

	// Config beats default
	t.Setenv("AIM_DB", "")
	path, err = DiscoverPath("", "/from/config/aim.db")
	if err != nil {
		t.Fatalf("DiscoverPath failed: %v", err)
	}
	if path != "/from/config/aim.db" {
		t.Errorf("Expected config path to win, got %s", path)
	}

	// Nothing set falls back to ~/.aim/aim.db
	path, err = DiscoverPath("", "")
	if err != nil {
		t.Fatalf("DiscoverPath failed: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(".aim", "aim.db")) {
		t.Errorf("Expected default path under ~/.aim, got %s", path)
	}
}

func TestDiscoverPathExpandsTilde(t *testing.T) {
	t.Setenv("AIM_DB", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Failed to resolve home: %v", err)
	}

	path, err := DiscoverPath("", "~/custom/aim.db")
	if err != nil {
		t.Fatalf("DiscoverPath failed: %v", err)
	}
	if path != filepath.Join(home, "custom", "aim.db") {
		t.Errorf("Expected tilde expansion, got %s", path)
	}
}

// Special values like ":memory:" must pass through the environment
// variable untouched so tests can run against a throwaway database.
func TestDiscoverPathEnvPassthrough(t *testing.T) {
	t.Setenv("AIM_DB", ":memory:")

	path, err := DiscoverPath("", "")
	if err != nil {
		t.Fatalf("DiscoverPath failed: %v", err)
	}
	if path != ":memory:" {
		t.Errorf("Expected :memory: passthrough, got %s", path)
	}
}

func TestInitCreatesDatabaseOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "aim.db")
	ctx := context.Background()

	created, err := Init(ctx, path)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if created != path {
		t.Errorf("Expected created path %s, got %s", path, created)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected database file to exist: %v", err)
	}

	if _, err := Init(ctx, path); err == nil {
		t.Error("Expected error when database already exists")
	}
}

func TestNewStorageSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()

	store, err := NewStorage(ctx, &Config{Path: filepath.Join(t.TempDir(), "aim.db")})
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	tk := task.New("Check the factory wiring", nil)
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	got, err := store.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.ID != tk.ID {
		t.Errorf("Expected task %s, got %s", tk.ID, got.ID)
	}
}

func TestNewStorageUnknownBackend(t *testing.T) {
	_, err := NewStorage(context.Background(), &Config{Backend: Backend("oracle")})
	if err == nil {
		t.Fatal("Expected error for unknown backend")
	}
}
