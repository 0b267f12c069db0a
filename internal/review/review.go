// Package review validates candidate outputs against a constraint set and
// turns failed verdicts into actionable feedback for the next attempt.
//
// Validation combines two passes: a deterministic structural pass for
// measurable constraints (reported coverage figures, required language or
// framework tokens) and a semantic pass delegated to a review agent for
// everything that cannot be checked mechanically. The verdict carries a
// weighted score, per-issue severities, and the perfect-match flag the
// refinement loop uses as its convergence signal.
package review

// Severity classifies how bad a validation issue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// rank orders severities for feedback synthesis, worst first.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// Issue is a single problem found while validating an output.
type Issue struct {
	// Constraint is the raw text of the violated constraint, or
	// "Quality Review" for issues from the semantic pass that are not
	// tied to a specific constraint.
	Constraint string   `json:"constraint"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Result is the verdict of validating one output against one constraint set.
type Result struct {
	// Passed is the loose human-visible notion of acceptability:
	// perfect, or no critical issues with a score of at least 0.8.
	Passed bool `json:"passed"`

	// Score is the weighted fraction of satisfied constraints in [0,1].
	// Required constraints weigh 1.0, optional ones 0.2.
	Score float64 `json:"score"`

	// Issues in discovery order: structural failures first, then the
	// semantic pass findings.
	Issues []Issue `json:"issues"`

	// PerfectMatch holds iff every required constraint is satisfied and
	// no critical issue exists. This is the convergence signal.
	PerfectMatch bool `json:"perfect_match"`
}

// CriticalCount returns the number of critical issues.
func (r Result) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			n++
		}
	}
	return n
}
