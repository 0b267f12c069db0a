// Package agent defines the execution port the refinement loop drives and
// the concrete agents that implement it: an Anthropic API client with retry,
// circuit breaking and rate limiting, and a delegation agent that shells out
// to a local coding-agent CLI.
package agent

import (
	"context"
	"strings"

	"github.com/steveyegge/aim/internal/constraint"
)

// Capability tags the kind of work a subtask needs from an agent
type Capability string

const (
	CapCoding        Capability = "coding"
	CapTesting       Capability = "testing"
	CapDocumentation Capability = "documentation"
	CapReview        Capability = "review"
	CapGeneral       Capability = "general"
)

// IsValid checks if the capability is one of the known values
func (c Capability) IsValid() bool {
	switch c {
	case CapCoding, CapTesting, CapDocumentation, CapReview, CapGeneral:
		return true
	}
	return false
}

// AllCapabilities returns every known capability
func AllCapabilities() []Capability {
	return []Capability{CapCoding, CapTesting, CapDocumentation, CapReview, CapGeneral}
}

// Task is one unit of work handed to an agent. The constraint set is fixed
// for the life of a refinement run; Iteration and Feedback change per attempt.
type Task struct {
	ID          string                  `json:"id"`
	Description string                  `json:"description"`
	Context     map[string]string       `json:"context,omitempty"`
	Constraints []constraint.Constraint `json:"constraints,omitempty"`
	Iteration   int                     `json:"iteration"`
	Feedback    string                  `json:"feedback,omitempty"`
}

// Port abstracts "produce a candidate output for this task". Implementations
// must be safely retryable: the loop calls Execute once per iteration with
// fresh feedback and expects either raw output text or a classified error.
type Port interface {
	Execute(ctx context.Context, task Task) (string, error)
}

// capability keyword groups, checked in order. Testing wins over coding so
// "implement unit tests" routes to the testing agent.
var capabilityKeywords = []struct {
	cap   Capability
	words []string
}{
	{CapTesting, []string{"test", "testing", "unit test", "coverage"}},
	{CapDocumentation, []string{"document", "documentation", "readme", "docs"}},
	{CapCoding, []string{"code", "implement", "refactor", "develop"}},
}

// SelectCapability maps a task description to the capability best suited to
// produce it. Pure function: the capability→agent binding is injected by the
// caller, never looked up from shared state.
func SelectCapability(description string) Capability {
	lower := strings.ToLower(description)
	for _, group := range capabilityKeywords {
		for _, w := range group.words {
			if strings.Contains(lower, w) {
				return group.cap
			}
		}
	}
	return CapGeneral
}
