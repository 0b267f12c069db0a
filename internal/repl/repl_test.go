package repl

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/constraint"
	"github.com/steveyegge/aim/internal/refine"
	"github.com/steveyegge/aim/internal/review"
	"github.com/steveyegge/aim/internal/storage/sqlite"
	"github.com/steveyegge/aim/internal/task"
)

type passPort struct{}

func (passPort) Execute(ctx context.Context, t agent.Task) (string, error) {
	return "output for " + t.Description, nil
}

type passValidator struct{}

func (passValidator) Validate(ctx context.Context, taskDescription, output string, cs []constraint.Constraint) review.Result {
	return review.Result{Passed: true, Score: 1.0, PerfectMatch: true}
}

func setupTestREPL(t *testing.T) (*REPL, *task.Manager) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "aim.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	manager, err := task.NewManager(task.ManagerConfig{
		Store:     store,
		Ports:     func(agent.Capability) (agent.Port, error) { return passPort{}, nil },
		Validator: passValidator{},
		Refine:    refine.Options{MaxIterations: 2},
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	r, err := New(&Config{Manager: manager})
	if err != nil {
		t.Fatalf("Failed to create REPL: %v", err)
	}
	r.ctx = context.Background()
	return r, manager
}

func TestNewRequiresManager(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := New(&Config{}); err == nil {
		t.Error("Expected error for missing manager")
	}
}

func TestProcessInputUnknownCommand(t *testing.T) {
	r, _ := setupTestREPL(t)

	// Unknown commands print a note but are not errors
	if err := r.processInput("frobnicate now"); err != nil {
		t.Errorf("Unknown command should not error, got: %v", err)
	}
}

func TestCommandUsageErrors(t *testing.T) {
	r, _ := setupTestREPL(t)

	tests := []struct {
		command string
		args    []string
	}{
		{"create", nil},
		{"execute", nil},
		{"execute", []string{"a", "b"}},
		{"status", nil},
		{"output", nil},
		{"review", []string{"some-id"}},
		{"cancel", nil},
		{"delete", nil},
	}

	for _, tt := range tests {
		err := r.commands[tt.command](tt.args)
		if err == nil {
			t.Errorf("%s with args %v: expected usage error", tt.command, tt.args)
			continue
		}
		if !strings.Contains(err.Error(), "usage:") {
			t.Errorf("%s: expected usage error, got: %v", tt.command, err)
		}
	}
}

func TestCreateExecuteOutputFlow(t *testing.T) {
	r, manager := setupTestREPL(t)
	ctx := context.Background()

	if err := r.processInput("create Implement a config parser in Go"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	tasks, err := manager.List(ctx, task.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	id := tasks[0].ID

	if err := r.processInput("status " + id); err != nil {
		t.Errorf("status failed: %v", err)
	}
	if err := r.processInput("execute " + id); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	got, err := manager.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("Expected completed task, got %s", got.Status)
	}
	if got.FinalOutput == "" {
		t.Error("Expected final output after execute")
	}

	if err := r.processInput("output " + id); err != nil {
		t.Errorf("output failed: %v", err)
	}
	if err := r.processInput("list completed"); err != nil {
		t.Errorf("list failed: %v", err)
	}
}

func TestCancelAndDelete(t *testing.T) {
	r, manager := setupTestREPL(t)
	ctx := context.Background()

	created, err := manager.Create(ctx, "Write release notes", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := r.processInput("cancel " + created.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	got, err := manager.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != task.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}

	if err := r.processInput("delete " + created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, created.ID); err == nil {
		t.Error("Expected error getting deleted task")
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	r, _ := setupTestREPL(t)

	err := r.cmdList([]string{"bogus"})
	if err == nil {
		t.Fatal("Expected error for unknown status")
	}
	if !strings.Contains(err.Error(), "unknown status") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected passthrough, got %q", got)
	}
	long := strings.Repeat("x", 60)
	got := truncate(long, 48)
	if len(got) != 48 {
		t.Errorf("Expected 48 chars, got %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis suffix, got %q", got)
	}
}
