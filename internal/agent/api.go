package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/aim/internal/constraint"
)

// capability-specific specializations appended to the base system prompt
var capabilityPrompts = map[Capability]string{
	CapCoding:        "writing high-quality, well-structured code. You follow best practices, write clean code, and ensure maintainability.",
	CapTesting:       "creating comprehensive test suites. You write thorough unit tests, integration tests, and ensure high code coverage.",
	CapDocumentation: "creating clear, comprehensive documentation. You write detailed API docs, README files, and user guides.",
	CapReview:        "reviewing and validating outputs. You check for errors, constraint violations, and ensure quality standards are met.",
	CapGeneral:       "solving complex problems across various domains. You are versatile and can handle diverse tasks effectively.",
}

// APIAgent produces candidate outputs through the Anthropic Messages API.
// One APIAgent is bound to one capability; the shared Client carries the
// retry and rate limiting machinery.
type APIAgent struct {
	client     *Client
	capability Capability
	model      string // empty = client default
	maxTokens  int64
}

// NewAPIAgent creates an API-backed agent for a capability
func NewAPIAgent(client *Client, capability Capability, model string, maxTokens int64) *APIAgent {
	if !capability.IsValid() {
		capability = CapGeneral
	}
	return &APIAgent{
		client:     client,
		capability: capability,
		model:      model,
		maxTokens:  maxTokens,
	}
}

// Capability returns the capability this agent is bound to
func (a *APIAgent) Capability() Capability { return a.capability }

// Execute implements Port
func (a *APIAgent) Execute(ctx context.Context, task Task) (string, error) {
	if strings.TrimSpace(task.Description) == "" {
		return "", Fatal(fmt.Errorf("task description is empty"))
	}

	out, err := a.client.Complete(ctx, CompletionRequest{
		Model:     a.model,
		System:    systemPrompt(a.capability, task),
		Prompt:    userPrompt(task),
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("agent %s execution: %w", a.capability, err)
	}
	return out, nil
}

// Review implements the semantic review pass used by the validator. The
// prompt is built by the caller; the review capability's system prompt
// frames it.
func (a *APIAgent) Review(ctx context.Context, prompt string) (string, error) {
	out, err := a.client.Complete(ctx, CompletionRequest{
		Model:     a.model,
		System:    "You are a highly capable AI assistant specialized in " + capabilityPrompts[CapReview],
		Prompt:    prompt,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("review call: %w", err)
	}
	return out, nil
}

// systemPrompt frames the capability, the constraint set, and any feedback
// from earlier iterations. Shared by the API and delegate agents.
func systemPrompt(capability Capability, task Task) string {
	var b strings.Builder
	b.WriteString("You are a highly capable AI assistant specialized in ")
	b.WriteString(capabilityPrompts[capability])

	if len(task.Constraints) > 0 {
		b.WriteString("\n\nIMPORTANT: You must strictly adhere to the following constraints:\n")
		b.WriteString(constraint.Format(task.Constraints))
	}

	if task.Feedback != "" {
		b.WriteString("\n\nFEEDBACK FROM PREVIOUS ITERATION:\n")
		b.WriteString(task.Feedback)
		b.WriteString("\nPlease address all feedback and ensure all constraints are met in this iteration.")
	}
	return b.String()
}

// userPrompt carries the task description and context
func userPrompt(task Task) string {
	var b strings.Builder
	b.WriteString("TASK:\n")
	b.WriteString(task.Description)
	b.WriteString("\n")

	if len(task.Context) > 0 {
		b.WriteString("\nCONTEXT:\n")
		keys := make([]string, 0, len(task.Context))
		for k := range task.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, task.Context[k])
		}
	}

	if task.Iteration > 0 {
		fmt.Fprintf(&b, "\nThis is iteration %d. ", task.Iteration+1)
		b.WriteString("Please refine your previous output based on the feedback provided.")
	}
	return b.String()
}
