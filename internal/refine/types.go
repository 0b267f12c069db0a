package refine

import (
	"context"
	"time"

	"github.com/steveyegge/aim/internal/constraint"
	"github.com/steveyegge/aim/internal/review"
)

// State is the refinement run's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateConverged State = "converged"
	StateExhausted State = "exhausted"
	StateFailed    State = "failed"
)

const (
	// DefaultMaxIterations bounds a run when the caller has no opinion.
	DefaultMaxIterations = 10

	// DefaultFeedbackWindow is how many recent feedback blocks stay in the
	// prompt verbatim. Older blocks drop from the prompt but remain in the
	// history.
	DefaultFeedbackWindow = 5
)

// Options controls one refinement run.
type Options struct {
	// MaxIterations is the iteration budget. Values <= 0 are invalid and
	// fail fast before any execution.
	MaxIterations int

	// FeedbackWindow bounds additive feedback accumulation; <= 0 means
	// DefaultFeedbackWindow.
	FeedbackWindow int

	// InitialFeedback seeds the first iteration's feedback. The manual
	// review-and-iterate operation uses this to inject user-supplied
	// feedback in place of synthesized feedback.
	InitialFeedback string
}

// DefaultOptions returns the standard run configuration.
func DefaultOptions() Options {
	return Options{
		MaxIterations:  DefaultMaxIterations,
		FeedbackWindow: DefaultFeedbackWindow,
	}
}

// Validator is the verdict side of the loop. *review.Validator satisfies
// this; tests substitute a stub.
type Validator interface {
	Validate(ctx context.Context, taskDescription, output string, cs []constraint.Constraint) review.Result
}

// IterationRecord is one completed cycle. Records are append-only: the loop
// never mutates one after creation.
type IterationRecord struct {
	// Index is the zero-based iteration number.
	Index int `json:"index"`

	// Output is the candidate the port produced; empty when the execution
	// itself failed.
	Output string `json:"output,omitempty"`

	// Validation is the verdict for Output; nil when the execution failed
	// before validation could run.
	Validation *review.Result `json:"validation,omitempty"`

	// FeedbackGiven is the feedback synthesized from this iteration's
	// verdict and handed to the next attempt.
	FeedbackGiven string `json:"feedback_given,omitempty"`

	// Err is the error marker for a failed execution.
	Err string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// RefinementResult is the immutable outcome of one run. Ownership passes to
// the caller when the run ends; persistence is the caller's concern.
type RefinementResult struct {
	// Success is true only for converged runs.
	Success bool `json:"success"`

	// State is the terminal state: converged, exhausted, or failed.
	State State `json:"state"`

	// FinalOutput is the converging output, or the best-scoring attempt for
	// non-converged runs with at least one validated output. Empty when no
	// iteration produced output.
	FinalOutput string `json:"final_output,omitempty"`

	// TotalIterations is how many iterations the run consumed.
	TotalIterations int `json:"total_iterations"`

	// History holds every iteration in order, including failed ones.
	History []IterationRecord `json:"history"`

	// BestIteration indexes History at the highest-scoring validated
	// iteration, ties broken by the earlier index; -1 when no iteration
	// was validated.
	BestIteration int `json:"best_iteration"`
}

// Best returns the best validated record, or nil when none exists.
func (r *RefinementResult) Best() *IterationRecord {
	if r.BestIteration < 0 || r.BestIteration >= len(r.History) {
		return nil
	}
	return &r.History[r.BestIteration]
}
