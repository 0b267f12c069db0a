package refine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/audit"
	"github.com/steveyegge/aim/internal/constraint"
	"github.com/steveyegge/aim/internal/review"
)

// stagnationNote nudges the agent off a local optimum when the score did
// not improve over the previous validated attempt.
const stagnationNote = "NOTE: Previous iteration had similar or better score. Please try a different approach."

// Refine drives repeated execute → validate → feedback cycles for one task
// until an output converges, the budget runs out, or the run fails.
//
// The returned error is non-nil only for contract violations (invalid
// options, missing collaborators) and cancellation; expected failures are
// encoded in the result's State and Success fields with the full history
// preserved. sink may be nil to disable auditing.
func Refine(ctx context.Context, task agent.Task, cs []constraint.Constraint, port agent.Port, validator Validator, sink audit.Sink, opts Options) (*RefinementResult, error) {
	if opts.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", opts.MaxIterations)
	}
	if port == nil {
		return nil, fmt.Errorf("execution port is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	window := opts.FeedbackWindow
	if window <= 0 {
		window = DefaultFeedbackWindow
	}

	result := &RefinementResult{State: StateRunning, BestIteration: -1}

	var feedbackBlocks []string
	if opts.InitialFeedback != "" {
		feedbackBlocks = append(feedbackBlocks, opts.InitialFeedback)
	}

	bestScore := 0.0
	var prevScore *float64

	for i := 0; i < opts.MaxIterations; i++ {
		// Cancellation is honored between iterations so an in-flight
		// call's audit record is never lost.
		if err := ctx.Err(); err != nil {
			result.State = StateFailed
			result.TotalIterations = i
			finalizeBest(result)
			return result, fmt.Errorf("refinement canceled after %d iterations: %w", i, err)
		}

		emit(ctx, sink, audit.EventIterationStart, task.ID, map[string]interface{}{
			"iteration": i,
		})

		attempt := task
		attempt.Constraints = cs
		attempt.Iteration = i
		attempt.Feedback = strings.Join(feedbackBlocks, "\n\n")

		output, err := port.Execute(ctx, attempt)
		if err != nil {
			record := IterationRecord{Index: i, Err: err.Error(), Timestamp: time.Now().UTC()}
			result.History = append(result.History, record)
			emit(context.WithoutCancel(ctx), sink, audit.EventIterationFailed, task.ID, map[string]interface{}{
				"iteration": i,
				"error":     err.Error(),
				"fatal":     agent.IsFatal(err),
			})

			if ctxErr := ctx.Err(); ctxErr != nil {
				result.State = StateFailed
				result.TotalIterations = i + 1
				finalizeBest(result)
				return result, fmt.Errorf("refinement canceled after %d iterations: %w", i+1, ctxErr)
			}
			if agent.IsFatal(err) {
				result.State = StateFailed
				result.TotalIterations = i + 1
				finalizeBest(result)
				return result, nil
			}
			// Transient: the failed call consumed budget; move on.
			continue
		}

		validation := validator.Validate(ctx, task.Description, output, cs)
		record := IterationRecord{
			Index:      i,
			Output:     output,
			Validation: &validation,
			Timestamp:  time.Now().UTC(),
		}

		// Strictly higher score wins; a tie keeps the earlier iteration.
		if result.BestIteration < 0 || validation.Score > bestScore {
			result.BestIteration = len(result.History)
			bestScore = validation.Score
		}

		emit(ctx, sink, audit.EventIterationComplete, task.ID, map[string]interface{}{
			"iteration":     i,
			"score":         validation.Score,
			"perfect_match": validation.PerfectMatch,
			"num_issues":    len(validation.Issues),
		})

		if validation.PerfectMatch {
			result.History = append(result.History, record)
			result.State = StateConverged
			result.Success = true
			result.TotalIterations = i + 1
			result.FinalOutput = output
			emit(ctx, sink, audit.EventConverged, task.ID, map[string]interface{}{
				"iteration": i,
				"score":     validation.Score,
			})
			return result, nil
		}

		feedback := review.Synthesize(validation.Issues)
		if feedback != "" {
			if prevScore != nil && validation.Score <= *prevScore {
				feedback += "\n\n" + stagnationNote
			}
			feedbackBlocks = append(feedbackBlocks, feedback)
			if len(feedbackBlocks) > window {
				feedbackBlocks = feedbackBlocks[len(feedbackBlocks)-window:]
			}
			record.FeedbackGiven = feedback
		}
		score := validation.Score
		prevScore = &score

		result.History = append(result.History, record)
	}

	result.TotalIterations = opts.MaxIterations
	finalizeBest(result)
	if result.BestIteration >= 0 {
		result.State = StateExhausted
	} else {
		// Every iteration failed before producing a validated output.
		result.State = StateFailed
	}
	emit(ctx, sink, audit.EventMaxIterationsReached, task.ID, map[string]interface{}{
		"total_iterations": opts.MaxIterations,
		"best_score":       bestScore,
		"perfect_match":    false,
	})
	return result, nil
}

// finalizeBest points FinalOutput at the best validated attempt, if any.
func finalizeBest(result *RefinementResult) {
	if best := result.Best(); best != nil {
		result.FinalOutput = best.Output
	}
}

// emit appends an audit event, logging failures instead of surfacing them.
func emit(ctx context.Context, sink audit.Sink, eventType audit.EventType, taskID string, data map[string]interface{}) {
	if sink == nil {
		return
	}
	if err := sink.Append(ctx, audit.New(eventType, taskID, data)); err != nil {
		slog.Warn("audit append failed",
			"event", eventType,
			"task", taskID,
			"error", err)
	}
}
