package review

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/constraint"
)

// Reviewer runs the semantic review pass. The API-backed review agent
// satisfies this; tests substitute a stub.
type Reviewer interface {
	Review(ctx context.Context, prompt string) (string, error)
}

const (
	// DefaultReviewTimeout bounds one semantic review call.
	DefaultReviewTimeout = 2 * time.Minute

	// PassScoreThreshold is the minimum score for a non-perfect output to
	// still count as passing when no critical issues exist.
	PassScoreThreshold = 0.8

	// optionalWeight is the score weight of a non-required constraint
	// relative to the 1.0 of a required one.
	optionalWeight = 0.2
)

// Patterns for coverage figures an agent reports in its output, e.g.
// "test coverage: 95%" or "achieves 92.5% line coverage".
var (
	coverageReportRe = regexp.MustCompile(`(?i)coverage[^0-9%\n]{0,30}?(\d+(?:\.\d+)?)\s*%`)
	coverageFigureRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s*(?:test\s+|statement\s+|line\s+|branch\s+)?coverage`)
)

// Validator checks candidate outputs against constraints.
type Validator struct {
	reviewer Reviewer
	timeout  time.Duration
}

// NewValidator creates a validator. reviewer may be nil, in which case only
// the structural pass runs and non-structural constraints are reported as
// inconclusive.
func NewValidator(reviewer Reviewer) *Validator {
	return &Validator{reviewer: reviewer, timeout: DefaultReviewTimeout}
}

// SetTimeout overrides the semantic review timeout.
func (v *Validator) SetTimeout(d time.Duration) {
	if d > 0 {
		v.timeout = d
	}
}

// Validate checks output against the constraint set and returns the verdict.
//
// Structural constraints (coverage figures, language/framework/compliance
// tokens) are checked deterministically. The rest, plus overall quality, go
// through the semantic reviewer. Repeated validation of the same output may
// differ on the semantic side; callers must not re-validate expecting
// convergence without producing a new output first.
func (v *Validator) Validate(ctx context.Context, taskDescription, output string, cs []constraint.Constraint) Result {
	satisfied := make([]bool, len(cs))
	var issues []Issue

	for i, c := range cs {
		if !c.Satisfiable() {
			continue
		}
		ok, msg := checkStructural(c, output)
		satisfied[i] = ok
		if !ok {
			severity := SeverityCritical
			if !c.Required {
				severity = SeverityWarning
			}
			issues = append(issues, Issue{
				Constraint: c.RawText,
				Severity:   severity,
				Message:    msg,
				Suggestion: "Ensure output satisfies: " + c.String(),
			})
		}
	}

	issues = append(issues, v.semanticPass(ctx, taskDescription, output, cs, satisfied)...)

	return score(cs, satisfied, issues)
}

// score folds satisfaction bits and issues into the final verdict.
func score(cs []constraint.Constraint, satisfied []bool, issues []Issue) Result {
	var totalWeight, satisfiedWeight float64
	allRequiredSatisfied := true
	for i, c := range cs {
		w := 1.0
		if !c.Required {
			w = optionalWeight
		}
		totalWeight += w
		if satisfied[i] {
			satisfiedWeight += w
		} else if c.Required {
			allRequiredSatisfied = false
		}
	}

	value := 1.0
	if totalWeight > 0 {
		value = satisfiedWeight / totalWeight
	}
	value = math.Max(0, math.Min(1, value))

	result := Result{Score: value, Issues: issues}
	result.PerfectMatch = allRequiredSatisfied && result.CriticalCount() == 0
	result.Passed = result.PerfectMatch ||
		(result.CriticalCount() == 0 && value >= PassScoreThreshold)
	return result
}

// checkStructural evaluates one structurally-checkable constraint.
func checkStructural(c constraint.Constraint, output string) (bool, string) {
	switch c.Kind {
	case constraint.KindCoverage:
		figures := reportedCoverage(output)
		if len(figures) == 0 {
			return false, "no test coverage figure reported in output"
		}
		best := figures[0]
		for _, f := range figures[1:] {
			if f > best {
				best = f
			}
		}
		if !compareCoverage(best, c.Params.Op, c.Params.Threshold) {
			return false, fmt.Sprintf("reported coverage %g%% does not satisfy %s %g%%",
				best, c.Params.Op, c.Params.Threshold)
		}
		return true, ""
	case constraint.KindLanguage, constraint.KindFramework, constraint.KindCompliance:
		token := c.Params.Token
		if token == "" {
			token = c.RawText
		}
		if strings.Contains(strings.ToLower(output), strings.ToLower(token)) {
			return true, ""
		}
		return false, fmt.Sprintf("output does not mention %s", token)
	default:
		return false, "constraint has no structural check"
	}
}

// reportedCoverage extracts coverage percentages claimed in the output.
// When several figures appear the highest claim is used; a constraint is
// satisfied if any reported number meets it.
func reportedCoverage(output string) []float64 {
	var figures []float64
	for _, re := range []*regexp.Regexp{coverageReportRe, coverageFigureRe} {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil || v < 0 || v > 100 {
				continue
			}
			figures = append(figures, v)
		}
	}
	return figures
}

func compareCoverage(value float64, op constraint.Op, threshold float64) bool {
	switch op {
	case constraint.OpGT:
		return value > threshold
	case constraint.OpLT:
		return value < threshold
	default:
		return value >= threshold
	}
}

// reviewVerdict is the JSON structure the semantic reviewer is asked for.
type reviewVerdict struct {
	Perfect          bool           `json:"perfect"`
	UnmetConstraints []int          `json:"unmet_constraints"`
	Issues           []verdictIssue `json:"issues"`
}

type verdictIssue struct {
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// semanticPass reviews the output for constraints without a structural
// check and for overall quality. It mutates satisfied for non-structural
// constraints and returns the issues it found.
func (v *Validator) semanticPass(ctx context.Context, taskDescription, output string, cs []constraint.Constraint, satisfied []bool) []Issue {
	if v.reviewer == nil {
		return inconclusive(cs, satisfied, "no semantic reviewer configured")
	}

	reviewCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	text, err := v.reviewer.Review(reviewCtx, buildReviewPrompt(taskDescription, output, cs))
	if err != nil {
		return inconclusive(cs, satisfied, err.Error())
	}

	parsed := agent.ParseJSON[reviewVerdict](text, "review verdict")
	if parsed.Success {
		return applyVerdict(parsed.Data, cs, satisfied)
	}
	return scanReviewText(text, cs, satisfied)
}

// inconclusive handles an unavailable or failing reviewer. If the
// structural pass already satisfies every required constraint the absence
// of a semantic verdict is not held against the output; otherwise it
// surfaces as a warning so the failure is never silently treated as a pass.
func inconclusive(cs []constraint.Constraint, satisfied []bool, reason string) []Issue {
	allRequiredStructural := true
	for i, c := range cs {
		if !c.Required {
			continue
		}
		if !c.Satisfiable() || !satisfied[i] {
			allRequiredStructural = false
			break
		}
	}
	if allRequiredStructural {
		return nil
	}
	return []Issue{{
		Constraint: "Quality Review",
		Severity:   SeverityWarning,
		Message:    "semantic review unavailable: " + reason,
		Suggestion: "Re-run validation when the review agent is reachable",
	}}
}

// applyVerdict folds a parsed reviewer verdict into the satisfaction bits.
// Structural verdicts are authoritative; an unmet index pointing at a
// structurally-checked constraint is ignored.
func applyVerdict(verdict reviewVerdict, cs []constraint.Constraint, satisfied []bool) []Issue {
	unmet := make(map[int]bool, len(verdict.UnmetConstraints))
	for _, n := range verdict.UnmetConstraints {
		if n >= 1 && n <= len(cs) {
			unmet[n-1] = true
		}
	}

	var issues []Issue
	for i, c := range cs {
		if c.Satisfiable() {
			continue
		}
		if unmet[i] {
			severity := SeverityCritical
			if !c.Required {
				severity = SeverityWarning
			}
			issues = append(issues, Issue{
				Constraint: c.RawText,
				Severity:   severity,
				Message:    "review found this constraint unmet",
				Suggestion: "Ensure output satisfies: " + c.String(),
			})
			continue
		}
		satisfied[i] = true
	}

	for _, vi := range verdict.Issues {
		issues = append(issues, Issue{
			Constraint: "Quality Review",
			Severity:   parseSeverity(vi.Severity),
			Message:    vi.Message,
			Suggestion: vi.Suggestion,
		})
	}

	// A not-perfect verdict with no specifics is contradictory; record it
	// so the imperfection claim is visible in the history.
	if !verdict.Perfect && len(unmet) == 0 && len(verdict.Issues) == 0 {
		issues = append(issues, Issue{
			Constraint: "Quality Review",
			Severity:   SeverityWarning,
			Message:    "review reported the output imperfect without naming specifics",
		})
	}
	return issues
}

func parseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "warning":
		return SeverityWarning
	case "info":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// scanReviewText is the fallback when the reviewer did not return usable
// JSON: look for the perfect-output sentinel, then scan line-by-line for
// issue indicators.
func scanReviewText(text string, cs []constraint.Constraint, satisfied []bool) []Issue {
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "OUTPUT IS PERFECT") || strings.Contains(upper, "ALL CONSTRAINTS MET") {
		markNonStructural(cs, satisfied, true)
		return nil
	}

	var issues []Issue
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if !containsAny(lower, "error", "issue", "problem", "missing", "incorrect") {
			continue
		}
		severity := SeverityWarning
		if containsAny(lower, "error", "critical", "must") {
			severity = SeverityCritical
		}
		issues = append(issues, Issue{
			Constraint: "Quality Review",
			Severity:   severity,
			Message:    strings.TrimSpace(line),
		})
	}

	// Without a per-constraint verdict, criticals mean the output is not
	// trustworthy; warnings alone get the benefit of the doubt.
	hasCritical := false
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			hasCritical = true
			break
		}
	}
	markNonStructural(cs, satisfied, !hasCritical)
	return issues
}

func markNonStructural(cs []constraint.Constraint, satisfied []bool, value bool) {
	for i, c := range cs {
		if !c.Satisfiable() {
			satisfied[i] = value
		}
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// buildReviewPrompt frames the output, the task, and the numbered
// constraint list for the semantic reviewer.
func buildReviewPrompt(taskDescription, output string, cs []constraint.Constraint) string {
	var b strings.Builder
	b.WriteString("Review the following output for the given task.\n\n")
	b.WriteString("TASK:\n")
	b.WriteString(taskDescription)
	b.WriteString("\n\nCONSTRAINTS:\n")
	if len(cs) == 0 {
		b.WriteString("(none declared)\n")
	}
	for i, c := range cs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.String())
	}
	b.WriteString("\nOUTPUT TO REVIEW:\n")
	b.WriteString(output)
	b.WriteString(`

Please carefully review the output and identify any issues:
1. Does it fully satisfy the task requirements?
2. Does it meet all specified constraints?
3. Are there any errors, inconsistencies, or quality issues?
4. Is anything missing, incomplete, or fabricated (invented APIs, facts, or references)?

Respond with a JSON object matching this structure:
{
  "perfect": true/false,
  "unmet_constraints": [2, 5],
  "issues": [
    {"severity": "critical|warning|info", "message": "...", "suggestion": "..."}
  ]
}

"unmet_constraints" lists the numbers of constraints the output does not satisfy.
If the output is perfect, respond with {"perfect": true, "unmet_constraints": [], "issues": []}.

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap in markdown code fences.`)
	return b.String()
}
