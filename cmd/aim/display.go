package main

import (
	"github.com/fatih/color"

	"github.com/steveyegge/aim/internal/task"
)

// statusBadge returns a colored one-glyph marker for a status
func statusBadge(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return color.New(color.FgGreen).Sprint("✓")
	case task.StatusInProgress:
		return color.New(color.FgYellow).Sprint("⚡")
	case task.StatusFailed:
		return color.New(color.FgRed).Sprint("✗")
	case task.StatusCancelled:
		return color.New(color.FgYellow).Sprint("⊗")
	default:
		return "·"
	}
}

// truncate shortens s to max characters, adding "..." if cut
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
