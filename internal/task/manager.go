package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/audit"
	"github.com/steveyegge/aim/internal/constraint"
	"github.com/steveyegge/aim/internal/refine"
	"github.com/steveyegge/aim/internal/review"
)

// ErrNotFound reports that no task with the given ID exists. Storage
// backends wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("task not found")

// Store is the persistence surface the manager needs. Satisfied by every
// storage backend. GetTask, UpdateTaskStatus, and DeleteTask return an
// error wrapping ErrNotFound for unknown IDs.
type Store interface {
	SaveTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter Filter) ([]*Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status Status) error
	DeleteTask(ctx context.Context, id string) error
}

// PortBuilder resolves the execution agent for a capability.
type PortBuilder func(capability agent.Capability) (agent.Port, error)

// ManagerConfig wires the manager's collaborators.
type ManagerConfig struct {
	Store     Store
	Sink      audit.Sink // optional
	Ports     PortBuilder
	Validator refine.Validator
	Refine    refine.Options
}

// Manager orchestrates tasks end to end: decomposition on create,
// dependency-ordered refinement runs on execute, review-and-iterate on
// demand. All state transitions are persisted and audited.
type Manager struct {
	store     Store
	sink      audit.Sink
	buildPort PortBuilder
	validator refine.Validator
	opts      refine.Options
}

// NewManager validates the wiring and returns a ready manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Ports == nil {
		return nil, fmt.Errorf("port builder is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	opts := cfg.Refine
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = refine.DefaultMaxIterations
	}
	return &Manager{
		store:     cfg.Store,
		sink:      cfg.Sink,
		buildPort: cfg.Ports,
		validator: cfg.Validator,
		opts:      opts,
	}, nil
}

// Create parses constraints from the description, decomposes it into
// capability-tagged subtasks, and persists the pending task.
func (m *Manager) Create(ctx context.Context, description string, taskContext map[string]string) (*Task, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("task description is required")
	}

	cs := constraint.Parse(description)
	subtasks := Decompose(description)
	if _, err := BuildGraph(subtasks); err != nil {
		return nil, fmt.Errorf("building dependency graph: %w", err)
	}

	t := New(description, cs)
	t.Context = taskContext
	t.Subtasks = subtasks

	if err := m.store.SaveTask(ctx, t); err != nil {
		return nil, fmt.Errorf("saving task: %w", err)
	}

	m.emit(ctx, audit.EventTaskCreated, t.ID, map[string]interface{}{
		"description":     description,
		"num_subtasks":    len(subtasks),
		"num_constraints": len(cs),
	})
	decomposed := make([]map[string]interface{}, 0, len(subtasks))
	for _, st := range subtasks {
		decomposed = append(decomposed, map[string]interface{}{
			"subtask_id": st.ID,
			"capability": string(st.Capability),
			"depends_on": st.DependsOn,
		})
	}
	m.emit(ctx, audit.EventTaskDecomposed, t.ID, map[string]interface{}{
		"subtasks": decomposed,
	})
	return t, nil
}

// Get loads a task by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Task, error) {
	return m.store.GetTask(ctx, id)
}

// List returns tasks matching the filter.
func (m *Manager) List(ctx context.Context, filter Filter) ([]*Task, error) {
	return m.store.ListTasks(ctx, filter)
}

// Delete removes a task and its persisted state.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.DeleteTask(ctx, id)
}

// Cancel marks a task cancelled. Only non-terminal tasks can be cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("task %s is already %s", id, t.Status)
	}
	if err := m.store.UpdateTaskStatus(ctx, id, StatusCancelled); err != nil {
		return fmt.Errorf("updating task status: %w", err)
	}
	m.emit(ctx, audit.EventTaskFailed, id, map[string]interface{}{
		"reason": "cancelled by user",
	})
	return nil
}

// Execute runs every subtask's refinement loop, fanning out subtasks whose
// dependencies are satisfied and sequencing the rest. A subtask is accepted
// when its run converged or its best score reached the pass threshold. The
// task completes only if every subtask was accepted; outputs are joined into
// the task's final output either way.
func (m *Manager) Execute(ctx context.Context, id string) (*Task, error) {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	// Checkpoints and terminal bookkeeping must land even when ctx dies
	// mid-run.
	saveCtx := context.WithoutCancel(ctx)

	t.Status = StatusInProgress
	if err := m.store.UpdateTaskStatus(ctx, t.ID, StatusInProgress); err != nil {
		return nil, fmt.Errorf("updating task status: %w", err)
	}

	graph, err := BuildGraph(t.Subtasks)
	if err != nil {
		t.Status = StatusFailed
		t.UpdatedAt = time.Now().UTC()
		if saveErr := m.store.SaveTask(saveCtx, t); saveErr != nil {
			slog.Warn("task checkpoint failed", "task", t.ID, "error", saveErr)
		}
		m.emit(saveCtx, audit.EventTaskFailed, t.ID, map[string]interface{}{
			"error": err.Error(),
		})
		return t, fmt.Errorf("building dependency graph: %w", err)
	}
	for _, st := range t.Subtasks {
		if st.Status == StatusCompleted {
			graph.MarkDone(st.ID)
		}
	}

	var runErr error
	for runErr == nil {
		ready := graph.Ready()
		if len(ready) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, st := range ready {
			g.Go(func() error {
				return m.runSubtask(gctx, t, st)
			})
		}
		runErr = g.Wait()

		for _, st := range ready {
			if st.Status == StatusCompleted {
				graph.MarkDone(st.ID)
			}
		}
		t.UpdatedAt = time.Now().UTC()
		if err := m.store.SaveTask(saveCtx, t); err != nil {
			slog.Warn("task checkpoint failed", "task", t.ID, "error", err)
		}
	}

	if runErr == nil {
		// Anything still pending was blocked by a failed dependency.
		for _, st := range t.Subtasks {
			if st.Status != StatusPending {
				continue
			}
			st.Status = StatusFailed
			st.Error = "dependency failed"
			m.emit(saveCtx, audit.EventSubtaskFailed, t.ID, map[string]interface{}{
				"subtask_id": st.ID,
				"error":      st.Error,
			})
		}
	}

	completed := 0
	for _, st := range t.Subtasks {
		if st.Status == StatusCompleted {
			completed++
		}
	}

	t.FinalOutput = joinOutputs(t.Subtasks)
	if completed == len(t.Subtasks) {
		t.Status = StatusCompleted
	} else {
		t.Status = StatusFailed
	}
	t.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveTask(saveCtx, t); err != nil {
		return t, fmt.Errorf("saving task: %w", err)
	}

	if t.Status == StatusCompleted {
		m.emit(saveCtx, audit.EventTaskCompleted, t.ID, map[string]interface{}{
			"subtasks_completed": completed,
			"num_subtasks":       len(t.Subtasks),
		})
	} else {
		data := map[string]interface{}{
			"subtasks_completed": completed,
			"num_subtasks":       len(t.Subtasks),
		}
		if runErr != nil {
			data["error"] = runErr.Error()
		}
		m.emit(saveCtx, audit.EventTaskFailed, t.ID, data)
	}
	return t, runErr
}

// Review runs one more refinement pass over the task seeded with
// user-supplied feedback, and adopts the run's best output.
func (m *Manager) Review(ctx context.Context, id, feedback string) (*Task, *refine.RefinementResult, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, nil, fmt.Errorf("feedback is required")
	}
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	m.emit(ctx, audit.EventReviewRequested, t.ID, map[string]interface{}{
		"feedback": feedback,
	})

	capability := agent.SelectCapability(t.Description)
	port, err := m.buildPort(capability)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving %s agent: %w", capability, err)
	}

	opts := m.opts
	opts.InitialFeedback = feedback
	atask := agent.Task{ID: t.ID, Description: t.Description, Context: t.Context}

	res, err := refine.Refine(ctx, atask, t.Constraints, port, m.validator, m.sink, opts)
	if err != nil {
		return t, res, err
	}

	if res.FinalOutput != "" {
		t.FinalOutput = res.FinalOutput
	}
	t.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveTask(ctx, t); err != nil {
		return t, res, fmt.Errorf("saving task: %w", err)
	}
	return t, res, nil
}

// runSubtask drives one subtask's refinement run and records the outcome on
// the subtask. Returns an error only for cancellation or wiring problems
// that should abort the whole task.
func (m *Manager) runSubtask(ctx context.Context, t *Task, st *Subtask) error {
	m.emit(ctx, audit.EventSubtaskStarted, t.ID, map[string]interface{}{
		"subtask_id": st.ID,
		"capability": string(st.Capability),
	})
	st.Status = StatusInProgress

	port, err := m.buildPort(st.Capability)
	if err != nil {
		st.Status = StatusFailed
		st.Error = fmt.Sprintf("resolving %s agent: %v", st.Capability, err)
		m.emit(ctx, audit.EventSubtaskFailed, t.ID, map[string]interface{}{
			"subtask_id": st.ID,
			"error":      st.Error,
		})
		return nil
	}

	atask := agent.Task{ID: t.ID, Description: st.Description, Context: t.Context}
	res, err := refine.Refine(ctx, atask, t.Constraints, port, m.validator, m.subtaskSink(st.ID), m.opts)
	if err != nil {
		st.Status = StatusFailed
		st.Error = err.Error()
		if res != nil {
			st.Output = res.FinalOutput
			st.Iterations = res.TotalIterations
		}
		m.emit(context.WithoutCancel(ctx), audit.EventSubtaskFailed, t.ID, map[string]interface{}{
			"subtask_id": st.ID,
			"error":      st.Error,
		})
		return err
	}

	score := 0.0
	if best := res.Best(); best != nil && best.Validation != nil {
		score = best.Validation.Score
	}
	st.Output = res.FinalOutput
	st.Score = score
	st.Iterations = res.TotalIterations

	if res.Success || score >= review.PassScoreThreshold {
		st.Status = StatusCompleted
		m.emit(ctx, audit.EventSubtaskCompleted, t.ID, map[string]interface{}{
			"subtask_id": st.ID,
			"score":      score,
			"iterations": res.TotalIterations,
		})
		return nil
	}

	st.Status = StatusFailed
	st.Error = failureReason(res, score)
	m.emit(ctx, audit.EventSubtaskFailed, t.ID, map[string]interface{}{
		"subtask_id": st.ID,
		"error":      st.Error,
		"score":      score,
	})
	return nil
}

// failureReason summarizes why a refinement run was not accepted.
func failureReason(res *refine.RefinementResult, score float64) string {
	if res.State == refine.StateFailed {
		for i := len(res.History) - 1; i >= 0; i-- {
			if res.History[i].Err != "" {
				return res.History[i].Err
			}
		}
	}
	return fmt.Sprintf("refinement did not converge (best score %.2f)", score)
}

// joinOutputs compiles subtask outputs into one document, one section per
// subtask that produced output, in task order.
func joinOutputs(subtasks []*Subtask) string {
	var sections []string
	for _, st := range subtasks {
		if st.Output == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", st.Description, st.Output))
	}
	return strings.Join(sections, "\n\n")
}

// subtaskSink tags every refinement event with the subtask it belongs to so
// the whole run shares the parent task's trail.
func (m *Manager) subtaskSink(subtaskID string) audit.Sink {
	if m.sink == nil {
		return nil
	}
	return &taggedSink{inner: m.sink, subtaskID: subtaskID}
}

type taggedSink struct {
	inner     audit.Sink
	subtaskID string
}

func (s *taggedSink) Append(ctx context.Context, event audit.Event) error {
	if event.Data == nil {
		event.Data = map[string]interface{}{}
	}
	event.Data["subtask_id"] = s.subtaskID
	return s.inner.Append(ctx, event)
}

func (m *Manager) emit(ctx context.Context, eventType audit.EventType, taskID string, data map[string]interface{}) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Append(ctx, audit.New(eventType, taskID, data)); err != nil {
		slog.Warn("audit append failed",
			"event", eventType,
			"task", taskID,
			"error", err)
	}
}
