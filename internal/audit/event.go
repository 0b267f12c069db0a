// Package audit records the append-only trail of a task's refinement run.
// The core loop and the task manager emit events into a Sink; nothing in the
// core ever reads them back. Reading is a CLI affordance (aim tail).
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	// EventTaskCreated indicates a task was created and persisted
	EventTaskCreated EventType = "task_created"
	// EventTaskDecomposed indicates a task was split into subtasks
	EventTaskDecomposed EventType = "task_decomposed"
	// EventSubtaskStarted indicates a subtask's refinement run began
	EventSubtaskStarted EventType = "subtask_started"
	// EventIterationStart indicates one refinement iteration began
	EventIterationStart EventType = "refinement_iteration_start"
	// EventIterationComplete indicates an iteration produced a validated output
	EventIterationComplete EventType = "refinement_iteration_complete"
	// EventIterationFailed indicates an iteration's execution failed
	EventIterationFailed EventType = "refinement_iteration_failed"
	// EventMaxIterationsReached indicates the budget ran out without convergence
	EventMaxIterationsReached EventType = "refinement_max_iterations_reached"
	// EventConverged indicates an iteration produced a perfect match
	EventConverged EventType = "refinement_converged"
	// EventSubtaskCompleted indicates a subtask finished acceptably
	EventSubtaskCompleted EventType = "subtask_completed"
	// EventSubtaskFailed indicates a subtask's run failed
	EventSubtaskFailed EventType = "subtask_failed"
	// EventTaskCompleted indicates the whole task reached a terminal success
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates the whole task reached a terminal failure
	EventTaskFailed EventType = "task_failed"
	// EventReviewRequested indicates a manual review-and-iterate was triggered
	EventReviewRequested EventType = "review_requested"
)

// Event is one atomic record in a task's audit trail.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// TaskID is the task (or subtask) this event belongs to
	TaskID string `json:"task_id"`
	// Data contains type-specific detail (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// New creates an event stamped with a fresh ID and the current time.
func New(eventType EventType, taskID string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Data:      data,
	}
}
