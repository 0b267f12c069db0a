// Package constraint turns free-text requirements into typed, independently
// checkable constraints. Parsing is deterministic: the same text always
// produces the same constraint set, ordered by first match position.
package constraint

import (
	"fmt"
	"strings"
)

// Kind classifies a constraint
type Kind string

const (
	// KindCoverage is a numeric test-coverage threshold with a comparison direction
	KindCoverage Kind = "coverage-threshold"
	// KindLanguage requires the output to use a specific programming language
	KindLanguage Kind = "language-requirement"
	// KindFramework requires a specific SDK, framework, or library
	KindFramework Kind = "framework-requirement"
	// KindCompliance tags the output with a compliance regime (GDPR, HIPAA, ...)
	KindCompliance Kind = "compliance-tag"
	// KindExplicit is a requirement the user enumerated as a list item
	KindExplicit Kind = "explicit-requirement"
	// KindCustom holds raw requirement text that could not be classified,
	// including malformed numeric thresholds that degraded instead of failing
	KindCustom Kind = "custom"
)

// IsValid checks if the kind is one of the known values
func (k Kind) IsValid() bool {
	switch k {
	case KindCoverage, KindLanguage, KindFramework, KindCompliance, KindExplicit, KindCustom:
		return true
	}
	return false
}

// Op is the comparison direction of a numeric threshold
type Op string

const (
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpLT  Op = "<"
)

// Params holds kind-specific data. Only the fields relevant to the kind are set.
type Params struct {
	// Threshold is the numeric bound for coverage constraints (percent)
	Threshold float64 `json:"threshold,omitempty"`
	// Op is the comparison direction for Threshold
	Op Op `json:"op,omitempty"`
	// Token is the canonical language/framework/compliance name
	Token string `json:"token,omitempty"`
}

// Constraint is a single checkable requirement derived from user text.
// Constraints are immutable once parsed: a task's constraint set never
// changes across refinement iterations, only the feedback text does.
type Constraint struct {
	Kind     Kind   `json:"kind"`
	RawText  string `json:"raw_text"`
	Params   Params `json:"params,omitempty"`
	Required bool   `json:"required"`
}

// String renders the constraint for logs and prompts
func (c Constraint) String() string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	b.WriteString(": ")
	switch c.Kind {
	case KindCoverage:
		fmt.Fprintf(&b, "test coverage %s %g%%", c.Params.Op, c.Params.Threshold)
	case KindLanguage, KindFramework, KindCompliance:
		b.WriteString(c.Params.Token)
	default:
		b.WriteString(c.RawText)
	}
	if !c.Required {
		b.WriteString(" (optional)")
	}
	return b.String()
}

// Key is the deduplication identity: two matches of the same kind and
// parameters are the same constraint regardless of where they appear.
func (c Constraint) Key() string {
	switch c.Kind {
	case KindCoverage:
		return fmt.Sprintf("%s|%s|%g", c.Kind, c.Params.Op, c.Params.Threshold)
	case KindLanguage, KindFramework, KindCompliance:
		return fmt.Sprintf("%s|%s", c.Kind, strings.ToLower(c.Params.Token))
	default:
		return fmt.Sprintf("%s|%s", c.Kind, strings.ToLower(strings.TrimSpace(c.RawText)))
	}
}

// Satisfiable reports whether the constraint has a structural checker.
// Constraints without one are judged only by the semantic review pass.
func (c Constraint) Satisfiable() bool {
	switch c.Kind {
	case KindCoverage, KindLanguage, KindFramework, KindCompliance:
		return true
	}
	return false
}

// Format renders a constraint set as a numbered block for inclusion in an
// agent prompt. An empty set renders as an empty string.
func Format(cs []Constraint) string {
	if len(cs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Constraints:\n")
	for i, c := range cs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.String())
	}
	return b.String()
}
