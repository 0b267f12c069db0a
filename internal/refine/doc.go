// Package refine implements the refinement control loop: the state machine
// that drives execute → validate → feedback cycles until an agent's output
// satisfies its constraint set or the iteration budget runs out.
//
// # Overview
//
// A single LLM pass rarely satisfies every declared constraint. The loop
// turns one-shot generation into convergent refinement: each iteration asks
// the execution port for a fresh candidate, validates it, and feeds the
// failures back into the next attempt as targeted instructions. Feedback is
// additive across attempts so fixing one issue does not quietly reintroduce
// another, with a bounded window to keep prompt growth in check.
//
// # State Machine
//
//	PENDING → RUNNING → (CONVERGED | EXHAUSTED | FAILED)
//
// CONVERGED means an iteration produced a perfect match (all required
// constraints satisfied, zero critical issues); the loop stops immediately.
// EXHAUSTED means the budget ran out; the result still carries the
// best-scoring attempt, never simply the last one. FAILED means a fatal
// port error, a cancellation, or a run where no iteration produced a
// validated output.
//
// # Core Types
//
// IterationRecord is one completed cycle, append-only; the history is the
// run's authoritative audit trail. RefinementResult is the immutable outcome
// handed to the caller. The loop itself never persists anything.
//
// The loop is sequential by construction: iteration n+1 depends on the
// validation of iteration n. Runs for different tasks are independent and
// may execute concurrently against a shared audit sink.
package refine
