package review

import (
	"fmt"
	"strings"
)

// Synthesize turns a verdict's issues into one actionable instruction block
// for the next attempt. Issues render worst-first, each referencing the
// constraint it violates. An empty issue set yields an empty string, which
// the refinement loop treats as "no actionable signal".
//
// The output is structurally idempotent: the same issue set always produces
// the same block in the same order.
func Synthesize(issues []Issue) string {
	if len(issues) == 0 {
		return ""
	}

	var critical, warnings, notes []Issue
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityCritical:
			critical = append(critical, issue)
		case SeverityWarning:
			warnings = append(warnings, issue)
		default:
			notes = append(notes, issue)
		}
	}

	var b strings.Builder
	writeIssueBlock(&b, "CRITICAL ISSUES (must fix):", critical)
	writeIssueBlock(&b, "WARNINGS (should fix):", warnings)
	writeIssueBlock(&b, "NOTES (informational):", notes)
	b.WriteString("Please address these issues in the next iteration.")
	return b.String()
}

func writeIssueBlock(b *strings.Builder, heading string, issues []Issue) {
	if len(issues) == 0 {
		return
	}
	b.WriteString(heading)
	b.WriteString("\n")
	for i, issue := range issues {
		fmt.Fprintf(b, "%d. %s: %s\n", i+1, issue.Constraint, issue.Message)
		if issue.Suggestion != "" {
			fmt.Fprintf(b, "   Suggestion: %s\n", issue.Suggestion)
		}
	}
	b.WriteString("\n")
}
