package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/audit"
	"github.com/steveyegge/aim/internal/constraint"
	"github.com/steveyegge/aim/internal/review"
)

// mockPort is a test implementation of the agent execution port
type mockPort struct {
	executeFunc  func(ctx context.Context, task agent.Task) (string, error)
	executeCalls int
	tasks        []agent.Task
}

func (m *mockPort) Execute(ctx context.Context, task agent.Task) (string, error) {
	m.executeCalls++
	m.tasks = append(m.tasks, task)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, task)
	}
	return fmt.Sprintf("draft %d", m.executeCalls), nil
}

// mockValidator is a test implementation of the Validator interface
type mockValidator struct {
	validateFunc  func(ctx context.Context, taskDescription, output string, cs []constraint.Constraint) review.Result
	validateCalls int
}

func (m *mockValidator) Validate(ctx context.Context, taskDescription, output string, cs []constraint.Constraint) review.Result {
	m.validateCalls++
	if m.validateFunc != nil {
		return m.validateFunc(ctx, taskDescription, output, cs)
	}
	// Default: never perfect, so budget-exhaustion paths are exercised
	return review.Result{
		Score: 0.5,
		Issues: []review.Issue{{
			Constraint: "Quality Review",
			Severity:   review.SeverityWarning,
			Message:    "needs another pass",
		}},
	}
}

func perfectResult() review.Result {
	return review.Result{Passed: true, Score: 1.0, PerfectMatch: true}
}

func failingResult(score float64, msg string) review.Result {
	return review.Result{
		Score: score,
		Issues: []review.Issue{{
			Constraint: "test coverage requirement",
			Severity:   review.SeverityCritical,
			Message:    msg,
		}},
	}
}

func TestRefine_ConvergesOnPerfectMatch(t *testing.T) {
	ctx := context.Background()

	port := &mockPort{
		executeFunc: func(ctx context.Context, task agent.Task) (string, error) {
			if task.Iteration == 0 {
				return "coverage: 70%", nil
			}
			return "coverage: 95%", nil
		},
	}
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
			if strings.Contains(output, "95") {
				return perfectResult()
			}
			return failingResult(0.5, "reported coverage 70% is below required 90%")
		},
	}

	task := agent.Task{ID: "task-1", Description: "Implement the parser with >90% coverage"}
	opts := Options{MaxIterations: 5}

	result, err := Refine(ctx, task, nil, port, validator, nil, opts)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if !result.Success {
		t.Error("Expected success=true")
	}
	if result.State != StateConverged {
		t.Errorf("Expected state %s, got %s", StateConverged, result.State)
	}
	if result.TotalIterations != 2 {
		t.Errorf("Expected 2 iterations, got %d", result.TotalIterations)
	}
	if port.executeCalls != 2 {
		t.Errorf("Expected 2 execute calls, got %d", port.executeCalls)
	}
	if result.FinalOutput != "coverage: 95%" {
		t.Errorf("Expected converging output, got %q", result.FinalOutput)
	}
	if result.BestIteration != 1 {
		t.Errorf("Expected best iteration 1, got %d", result.BestIteration)
	}
	if len(result.History) != 2 {
		t.Fatalf("Expected 2 history records, got %d", len(result.History))
	}

	// First attempt's feedback must reach the second attempt
	if !strings.Contains(result.History[0].FeedbackGiven, "CRITICAL ISSUES (must fix):") {
		t.Errorf("Expected critical feedback block, got %q", result.History[0].FeedbackGiven)
	}
	if port.tasks[0].Feedback != "" {
		t.Errorf("Expected no feedback on first attempt, got %q", port.tasks[0].Feedback)
	}
	if !strings.Contains(port.tasks[1].Feedback, "below required 90%") {
		t.Errorf("Expected threaded feedback on second attempt, got %q", port.tasks[1].Feedback)
	}
	if port.tasks[1].Iteration != 1 {
		t.Errorf("Expected iteration 1 on second attempt, got %d", port.tasks[1].Iteration)
	}
}

func TestRefine_FirstTryPerfect(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
			return perfectResult()
		},
	}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "trivial"}, nil, port, validator, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if result.TotalIterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", result.TotalIterations)
	}
	if result.State != StateConverged {
		t.Errorf("Expected state %s, got %s", StateConverged, result.State)
	}
	if port.executeCalls != 1 {
		t.Errorf("Expected 1 execute call, got %d", port.executeCalls)
	}
	if result.BestIteration != 0 {
		t.Errorf("Expected best iteration 0, got %d", result.BestIteration)
	}
	if result.History[0].FeedbackGiven != "" {
		t.Errorf("Expected no feedback on converged attempt, got %q", result.History[0].FeedbackGiven)
	}
}

func TestRefine_ExhaustsBudgetKeepsBest(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}

	scores := []float64{0.4, 0.9, 0.6}
	validator := &mockValidator{}
	validator.validateFunc = func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
		return failingResult(scores[validator.validateCalls-1], "still incomplete")
	}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "hard"}, nil, port, validator, nil, Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if result.Success {
		t.Error("Expected success=false after exhaustion")
	}
	if result.State != StateExhausted {
		t.Errorf("Expected state %s, got %s", StateExhausted, result.State)
	}
	if result.TotalIterations != 3 {
		t.Errorf("Expected 3 iterations, got %d", result.TotalIterations)
	}
	if result.BestIteration != 1 {
		t.Errorf("Expected best iteration 1, got %d", result.BestIteration)
	}
	if result.FinalOutput != "draft 2" {
		t.Errorf("Expected best attempt output, got %q", result.FinalOutput)
	}
	if len(result.History) != 3 {
		t.Errorf("Expected 3 history records, got %d", len(result.History))
	}
}

func TestRefine_TieKeepsEarlierBest(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
			return failingResult(0.7, "same score every time")
		},
	}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "plateau"}, nil, port, validator, nil, Options{MaxIterations: 2})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if result.BestIteration != 0 {
		t.Errorf("Expected tie to keep iteration 0, got %d", result.BestIteration)
	}
	if result.FinalOutput != "draft 1" {
		t.Errorf("Expected first draft as best, got %q", result.FinalOutput)
	}
}

func TestRefine_ConvergenceOutputWinsOverBestScore(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}

	// Iteration 0 scores higher, iteration 1 converges with a lower score
	// (an unsatisfied optional constraint). The converging output ships.
	validator := &mockValidator{}
	validator.validateFunc = func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
		if validator.validateCalls == 1 {
			return failingResult(0.9, "one required constraint unmet")
		}
		return review.Result{Passed: true, Score: 0.8, PerfectMatch: true}
	}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, Options{MaxIterations: 5})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if result.State != StateConverged {
		t.Errorf("Expected state %s, got %s", StateConverged, result.State)
	}
	if result.FinalOutput != "draft 2" {
		t.Errorf("Expected converging output, got %q", result.FinalOutput)
	}
	if result.BestIteration != 0 {
		t.Errorf("Expected best iteration 0 (higher score), got %d", result.BestIteration)
	}
}

func TestRefine_FatalOnFirstIteration(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{
		executeFunc: func(ctx context.Context, task agent.Task) (string, error) {
			return "", agent.Fatal(errors.New("invalid api key"))
		},
	}
	validator := &mockValidator{}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "doomed"}, nil, port, validator, nil, Options{MaxIterations: 5})
	if err != nil {
		t.Fatalf("Fatal agent errors are reported in the result, got: %v", err)
	}

	if result.State != StateFailed {
		t.Errorf("Expected state %s, got %s", StateFailed, result.State)
	}
	if result.Success {
		t.Error("Expected success=false")
	}
	if result.TotalIterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", result.TotalIterations)
	}
	if result.FinalOutput != "" {
		t.Errorf("Expected empty final output, got %q", result.FinalOutput)
	}
	if result.BestIteration != -1 {
		t.Errorf("Expected best iteration -1, got %d", result.BestIteration)
	}
	if len(result.History) != 1 || !strings.Contains(result.History[0].Err, "invalid api key") {
		t.Errorf("Expected error record in history, got %+v", result.History)
	}
	if validator.validateCalls != 0 {
		t.Errorf("Expected no validation calls, got %d", validator.validateCalls)
	}
}

func TestRefine_FatalKeepsBestSoFar(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{
		executeFunc: func(ctx context.Context, task agent.Task) (string, error) {
			if task.Iteration == 0 {
				return "draft 1", nil
			}
			return "", agent.Fatal(errors.New("401 unauthorized"))
		},
	}
	validator := &mockValidator{}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, Options{MaxIterations: 5})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if result.State != StateFailed {
		t.Errorf("Expected state %s, got %s", StateFailed, result.State)
	}
	if result.TotalIterations != 2 {
		t.Errorf("Expected 2 iterations, got %d", result.TotalIterations)
	}
	if result.FinalOutput != "draft 1" {
		t.Errorf("Expected best-so-far output preserved, got %q", result.FinalOutput)
	}
	if result.BestIteration != 0 {
		t.Errorf("Expected best iteration 0, got %d", result.BestIteration)
	}
	if len(result.History) != 2 {
		t.Errorf("Expected 2 history records, got %d", len(result.History))
	}
}

func TestRefine_TransientErrorConsumesBudget(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}
	port.executeFunc = func(ctx context.Context, task agent.Task) (string, error) {
		if port.executeCalls == 2 {
			return "", agent.Transient(errors.New("429 rate limit exceeded"))
		}
		return fmt.Sprintf("draft %d", port.executeCalls), nil
	}

	scores := map[int]float64{1: 0.5, 2: 0.6}
	validator := &mockValidator{}
	validator.validateFunc = func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
		return failingResult(scores[validator.validateCalls], "not there yet")
	}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "flaky"}, nil, port, validator, nil, Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	// The failed call still consumed one of the three iterations
	if port.executeCalls != 3 {
		t.Errorf("Expected 3 execute calls, got %d", port.executeCalls)
	}
	if validator.validateCalls != 2 {
		t.Errorf("Expected 2 validation calls, got %d", validator.validateCalls)
	}
	if result.State != StateExhausted {
		t.Errorf("Expected state %s, got %s", StateExhausted, result.State)
	}
	if len(result.History) != 3 {
		t.Fatalf("Expected 3 history records, got %d", len(result.History))
	}
	if result.History[1].Err == "" || result.History[1].Validation != nil {
		t.Errorf("Expected bare error record at index 1, got %+v", result.History[1])
	}
	if result.FinalOutput != "draft 3" {
		t.Errorf("Expected draft 3 as best, got %q", result.FinalOutput)
	}
	if result.BestIteration != 2 {
		t.Errorf("Expected best iteration 2, got %d", result.BestIteration)
	}
}

func TestRefine_AllTransientFails(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{
		executeFunc: func(ctx context.Context, task agent.Task) (string, error) {
			return "", agent.Transient(errors.New("api_error: overloaded"))
		},
	}
	validator := &mockValidator{}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if result.State != StateFailed {
		t.Errorf("Expected state %s (no validated output), got %s", StateFailed, result.State)
	}
	if result.FinalOutput != "" {
		t.Errorf("Expected empty final output, got %q", result.FinalOutput)
	}
	if result.BestIteration != -1 {
		t.Errorf("Expected best iteration -1, got %d", result.BestIteration)
	}
	if port.executeCalls != 3 {
		t.Errorf("Expected 3 execute calls, got %d", port.executeCalls)
	}
	if validator.validateCalls != 0 {
		t.Errorf("Expected 0 validation calls, got %d", validator.validateCalls)
	}
}

func TestRefine_NeverExceedsMaxIterations(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}
	validator := &mockValidator{}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, Options{MaxIterations: 4})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if port.executeCalls != 4 {
		t.Errorf("Expected exactly 4 execute calls, got %d", port.executeCalls)
	}
	if result.TotalIterations != 4 {
		t.Errorf("Expected 4 iterations, got %d", result.TotalIterations)
	}
}

func TestRefine_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	task := agent.Task{ID: "t", Description: "task"}

	tests := []struct {
		name      string
		port      agent.Port
		validator Validator
		opts      Options
		errMsg    string
	}{
		{
			name:      "zero max iterations",
			port:      &mockPort{},
			validator: &mockValidator{},
			opts:      Options{MaxIterations: 0},
			errMsg:    "max iterations must be positive",
		},
		{
			name:      "negative max iterations",
			port:      &mockPort{},
			validator: &mockValidator{},
			opts:      Options{MaxIterations: -3},
			errMsg:    "max iterations must be positive",
		},
		{
			name:      "nil port",
			port:      nil,
			validator: &mockValidator{},
			opts:      Options{MaxIterations: 1},
			errMsg:    "execution port is required",
		},
		{
			name:      "nil validator",
			port:      &mockPort{},
			validator: nil,
			opts:      Options{MaxIterations: 1},
			errMsg:    "validator is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Refine(ctx, task, nil, tt.port, tt.validator, nil, tt.opts)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestRefine_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	port := &mockPort{}
	port.executeFunc = func(ctx context.Context, task agent.Task) (string, error) {
		if port.executeCalls == 1 {
			cancel()
		}
		return fmt.Sprintf("draft %d", port.executeCalls), nil
	}
	validator := &mockValidator{}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, Options{MaxIterations: 10})
	if err == nil {
		t.Fatal("Expected cancellation error, got nil")
	}
	if !strings.Contains(err.Error(), "refinement canceled after 1 iterations") {
		t.Errorf("Expected cancellation error, got: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected wrapped context.Canceled, got: %v", err)
	}

	// Partial result is still returned alongside the error
	if result == nil {
		t.Fatal("Expected partial result on cancellation")
	}
	if result.State != StateFailed {
		t.Errorf("Expected state %s, got %s", StateFailed, result.State)
	}
	if result.TotalIterations != 1 {
		t.Errorf("Expected 1 completed iteration, got %d", result.TotalIterations)
	}
	if result.FinalOutput != "draft 1" {
		t.Errorf("Expected best-so-far output, got %q", result.FinalOutput)
	}
	if port.executeCalls != 1 {
		t.Errorf("Expected 1 execute call, got %d", port.executeCalls)
	}
}

func TestRefine_CancelDuringExecute(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	port := &mockPort{
		executeFunc: func(ctx context.Context, task agent.Task) (string, error) {
			cancel()
			return "", fmt.Errorf("call aborted: %w", context.Canceled)
		},
	}
	validator := &mockValidator{}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, Options{MaxIterations: 10})
	if err == nil {
		t.Fatal("Expected cancellation error, got nil")
	}
	if !strings.Contains(err.Error(), "refinement canceled") {
		t.Errorf("Expected cancellation error, got: %v", err)
	}
	if result == nil {
		t.Fatal("Expected partial result on cancellation")
	}
	if len(result.History) != 1 || result.History[0].Err == "" {
		t.Errorf("Expected aborted call recorded in history, got %+v", result.History)
	}
}

func TestRefine_StagnationNote(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
			return failingResult(0.5, "still missing the error handling section")
		},
	}

	result, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if strings.Contains(result.History[0].FeedbackGiven, "try a different approach") {
		t.Error("First iteration has no predecessor; no stagnation note expected")
	}
	if !strings.Contains(result.History[1].FeedbackGiven, "try a different approach") {
		t.Errorf("Expected stagnation note on flat score, got %q", result.History[1].FeedbackGiven)
	}
	if !strings.Contains(port.tasks[2].Feedback, "try a different approach") {
		t.Error("Expected stagnation note threaded into the next attempt")
	}
}

func TestRefine_FeedbackWindowBound(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
			return failingResult(0.3, fmt.Sprintf("missing section in %s", output))
		},
	}

	opts := Options{MaxIterations: 5, FeedbackWindow: 2}
	_, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, opts)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	last := port.tasks[4].Feedback
	if n := strings.Count(last, "CRITICAL ISSUES (must fix):"); n != 2 {
		t.Errorf("Expected 2 feedback blocks in window, got %d", n)
	}
	if strings.Contains(last, "draft 1") || strings.Contains(last, "draft 2") {
		t.Errorf("Expected oldest feedback evicted, got %q", last)
	}
	if !strings.Contains(last, "draft 3") || !strings.Contains(last, "draft 4") {
		t.Errorf("Expected the two most recent blocks, got %q", last)
	}
}

func TestRefine_InitialFeedbackSeeded(t *testing.T) {
	ctx := context.Background()
	port := &mockPort{}
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
			return perfectResult()
		},
	}

	opts := Options{MaxIterations: 3, InitialFeedback: "User notes: prefer table-driven tests."}
	_, err := Refine(ctx, agent.Task{ID: "t", Description: "task"}, nil, port, validator, nil, opts)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if port.tasks[0].Feedback != "User notes: prefer table-driven tests." {
		t.Errorf("Expected seeded feedback on first attempt, got %q", port.tasks[0].Feedback)
	}
}

func TestRefine_AuditTrail(t *testing.T) {
	ctx := context.Background()
	sink, err := audit.NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	port := &mockPort{}
	validator := &mockValidator{}
	validator.validateFunc = func(ctx context.Context, desc, output string, cs []constraint.Constraint) review.Result {
		if validator.validateCalls == 2 {
			return perfectResult()
		}
		return failingResult(0.5, "keep going")
	}

	task := agent.Task{ID: "task-audit", Description: "task"}
	if _, err := Refine(ctx, task, nil, port, validator, sink, Options{MaxIterations: 5}); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	events, err := sink.ReadTrail(ctx, "task-audit")
	if err != nil {
		t.Fatalf("ReadTrail failed: %v", err)
	}

	want := []audit.EventType{
		audit.EventIterationStart,
		audit.EventIterationComplete,
		audit.EventIterationStart,
		audit.EventIterationComplete,
		audit.EventConverged,
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, et := range want {
		if events[i].Type != et {
			t.Errorf("Event %d: expected %s, got %s", i, et, events[i].Type)
		}
	}
}
