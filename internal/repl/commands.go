package repl

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/aim/internal/task"
)

const maxListed = 10

// cmdCreate creates a task from the rest of the line and shows the
// decomposition.
func (r *REPL) cmdCreate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: create <description>")
	}

	description := strings.Join(args, " ")
	t, err := r.manager.Create(r.ctx, description, nil)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("\n%s Created task %s\n", green("✓"), cyan(t.ID))
	if len(t.Constraints) > 0 {
		fmt.Printf("\nConstraints (%d):\n", len(t.Constraints))
		for _, c := range t.Constraints {
			marker := "optional"
			if c.Required {
				marker = "required"
			}
			fmt.Printf("  - [%s] %s\n", marker, c.String())
		}
	}
	if len(t.Subtasks) > 0 {
		fmt.Printf("\nSubtasks (%d):\n", len(t.Subtasks))
		for i, st := range t.Subtasks {
			line := fmt.Sprintf("%2d. [%s] %s", i+1, st.Capability, st.Description)
			if len(st.DependsOn) > 0 {
				line += fmt.Sprintf(" (after %s)", strings.Join(st.DependsOn, ", "))
			}
			fmt.Println(line)
		}
	}
	fmt.Printf("\nRun 'execute %s' to start refinement.\n\n", t.ID)
	return nil
}

// cmdExecute runs the task's refinement loops
func (r *REPL) cmdExecute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: execute <task-id>")
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("\n%s Executing task %s...\n", yellow("⚡"), args[0])

	t, err := r.manager.Execute(r.ctx, args[0])
	if t != nil {
		r.printTaskSummary(t)
	}
	return err
}

// cmdStatus shows full task and subtask state
func (r *REPL) cmdStatus(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: status <task-id>")
	}

	t, err := r.manager.Get(r.ctx, args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Printf("\n%s\n", cyan("Task "+t.ID))
	fmt.Printf("  Description: %s\n", t.Description)
	fmt.Printf("  Status:      %s %s\n", statusBadge(t.Status), t.Status)
	fmt.Printf("  Created:     %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated:     %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	if len(t.Constraints) > 0 {
		fmt.Printf("\nConstraints (%d):\n", len(t.Constraints))
		for _, c := range t.Constraints {
			marker := "optional"
			if c.Required {
				marker = "required"
			}
			fmt.Printf("  - [%s] %s\n", marker, c.String())
		}
	}

	if len(t.Subtasks) > 0 {
		fmt.Printf("\nSubtasks (%d):\n", len(t.Subtasks))
		for i, st := range t.Subtasks {
			fmt.Printf("%2d. %s [%s] %s\n", i+1, statusBadge(st.Status), st.Capability, st.Description)
			if st.Status == task.StatusCompleted || st.Iterations > 0 {
				fmt.Printf("      score %.2f after %d iteration(s)\n", st.Score, st.Iterations)
			}
			if st.Error != "" {
				fmt.Printf("      error: %s\n", st.Error)
			}
		}
	}
	fmt.Println()
	return nil
}

// cmdOutput prints the task's final output
func (r *REPL) cmdOutput(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: output <task-id>")
	}

	t, err := r.manager.Get(r.ctx, args[0])
	if err != nil {
		return err
	}

	if t.FinalOutput == "" {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s Task %s has no output yet (status: %s)\n", yellow("ℹ"), t.ID, t.Status)
		return nil
	}

	fmt.Println(t.FinalOutput)
	return nil
}

// cmdReview re-runs refinement seeded with user feedback
func (r *REPL) cmdReview(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: review <task-id> <feedback>")
	}

	id := args[0]
	feedback := strings.Join(args[1:], " ")

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("\n%s Re-refining task %s with your feedback...\n", yellow("⚡"), id)

	_, res, err := r.manager.Review(r.ctx, id, feedback)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Review pass finished: %s after %d iteration(s)\n", green("✓"), res.State, res.TotalIterations)
	if best := res.Best(); best != nil && best.Validation != nil {
		fmt.Printf("  Best score: %.2f\n", best.Validation.Score)
	}
	fmt.Printf("  Run 'output %s' to see the updated output.\n\n", id)
	return nil
}

// cmdList lists tasks, optionally filtered by status
func (r *REPL) cmdList(args []string) error {
	var filter task.Filter
	if len(args) > 0 {
		s := task.Status(args[0])
		if !s.IsValid() {
			return fmt.Errorf("unknown status %q (pending, in_progress, completed, failed, cancelled)", args[0])
		}
		filter.Status = s
	}

	tasks, err := r.manager.List(r.ctx, filter)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	fmt.Printf("\n%s\n", cyan(fmt.Sprintf("Tasks (%d):", len(tasks))))
	for i, t := range tasks {
		if i >= maxListed {
			fmt.Printf("    ... and %d more\n", len(tasks)-maxListed)
			break
		}
		fmt.Printf("%2d. %s %s  %s\n", i+1, statusBadge(t.Status), t.ID, truncate(t.Description, 48))
	}
	fmt.Println()
	return nil
}

// cmdCancel cancels a task that has not finished
func (r *REPL) cmdCancel(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cancel <task-id>")
	}

	if err := r.manager.Cancel(r.ctx, args[0]); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Cancelled task %s\n", green("✓"), args[0])
	return nil
}

// cmdDelete deletes a task
func (r *REPL) cmdDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <task-id>")
	}

	if err := r.manager.Delete(r.ctx, args[0]); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Deleted task %s\n", green("✓"), args[0])
	return nil
}

// printTaskSummary prints the one-screen outcome of an execute run
func (r *REPL) printTaskSummary(t *task.Task) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Printf("\n%s\n", cyan("Result:"))
	fmt.Printf("  Task %s is %s %s\n", t.ID, statusBadge(t.Status), t.Status)
	for i, st := range t.Subtasks {
		fmt.Printf("%2d. %s [%s] %s (score %.2f, %d iteration(s))\n",
			i+1, statusBadge(st.Status), st.Capability, truncate(st.Description, 40), st.Score, st.Iterations)
	}
	if t.Status == task.StatusCompleted {
		fmt.Printf("\nRun 'output %s' to see the result.\n", t.ID)
	}
	fmt.Println()
}

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

// truncate shortens s to max runes, appending "..." when cut
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
