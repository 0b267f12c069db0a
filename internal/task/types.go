// Package task holds the orchestration layer: the persistent Task and
// Subtask records, keyword decomposition into capability-tagged subtasks,
// dependency sequencing, and the Manager that drives refinement runs for a
// whole task.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/constraint"
)

// Status represents the current state of a task or subtask
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status is a final state
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Subtask is one capability-scoped slice of a task. Subtasks with
// dependencies wait until every dependency has completed.
type Subtask struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Capability  agent.Capability `json:"capability"`
	DependsOn   []string         `json:"depends_on,omitempty"`
	Status      Status           `json:"status"`
	Output      string           `json:"output,omitempty"`
	Score       float64          `json:"score,omitempty"`
	Iterations  int              `json:"iterations,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Task is a user request: a description, the constraints parsed from it,
// and the subtasks it decomposed into.
type Task struct {
	ID          string                  `json:"id"`
	Description string                  `json:"description"`
	Context     map[string]string       `json:"context,omitempty"`
	Constraints []constraint.Constraint `json:"constraints,omitempty"`
	Subtasks    []*Subtask              `json:"subtasks,omitempty"`
	Status      Status                  `json:"status"`
	FinalOutput string                  `json:"final_output,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// New creates a pending task with a fresh ID and parsed constraints.
func New(description string, cs []constraint.Constraint) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New().String(),
		Description: description,
		Constraints: cs,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks if the task has valid field values
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(t.Description) == 0 {
		return fmt.Errorf("description is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	for _, st := range t.Subtasks {
		if st.ID == "" {
			return fmt.Errorf("subtask id is required")
		}
		if !st.Capability.IsValid() {
			return fmt.Errorf("subtask %s: invalid capability %q", st.ID, st.Capability)
		}
		if !st.Status.IsValid() {
			return fmt.Errorf("subtask %s: invalid status %q", st.ID, st.Status)
		}
	}
	return nil
}

// SubtaskByID returns the subtask with the given ID, or nil.
func (t *Task) SubtaskByID(id string) *Subtask {
	for _, st := range t.Subtasks {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// Filter narrows ListTasks results. Zero value matches everything.
type Filter struct {
	Status Status
	Limit  int
}
