package task

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/steveyegge/aim/internal/agent"
)

// decomposition keyword groups, applied in order so dependencies read left
// to right: tests depend on the code subtask, docs depend on everything
// prior.
var decomposeGroups = []struct {
	capability agent.Capability
	words      []string
	format     string
}{
	{agent.CapCoding, []string{"code", "implement", "refactor", "develop"}, "Implement: %s"},
	{agent.CapTesting, []string{"test", "testing", "unit test", "coverage"}, "Create tests for: %s"},
	{agent.CapDocumentation, []string{"document", "documentation", "readme", "docs", "api doc"}, "Generate documentation for: %s"},
}

// Decompose splits a task description into capability-tagged subtasks by
// keyword matching. A description matching no group becomes a single
// general subtask carrying the description verbatim.
func Decompose(description string) []*Subtask {
	lower := strings.ToLower(description)
	var subtasks []*Subtask

	for _, group := range decomposeGroups {
		if !matchesAny(lower, group.words) {
			continue
		}
		st := &Subtask{
			ID:          uuid.New().String(),
			Description: fmt.Sprintf(group.format, description),
			Capability:  group.capability,
			Status:      StatusPending,
		}
		switch group.capability {
		case agent.CapTesting:
			if len(subtasks) > 0 {
				st.DependsOn = []string{subtasks[0].ID}
			}
		case agent.CapDocumentation:
			for _, prior := range subtasks {
				st.DependsOn = append(st.DependsOn, prior.ID)
			}
		}
		subtasks = append(subtasks, st)
	}

	if len(subtasks) == 0 {
		subtasks = append(subtasks, &Subtask{
			ID:          uuid.New().String(),
			Description: description,
			Capability:  agent.CapGeneral,
			Status:      StatusPending,
		})
	}
	return subtasks
}

func matchesAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
