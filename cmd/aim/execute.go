package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/aim/internal/task"
)

var executeCmd = &cobra.Command{
	Use:   "execute <task-id>",
	Short: "Run the task's refinement loops",
	Long: `Execute a task. Subtasks whose dependencies are satisfied run
concurrently; each one iterates through its agent until the output
satisfies the task's constraints or the iteration budget runs out.

Progress is checkpointed after every wave of subtasks, so an interrupted
run can be re-executed and picks up where it left off. Every iteration
is recorded in the audit trail ('aim tail <task-id>').`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Ctrl+C cancels the run; checkpoints still land
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "\nCancelling... progress so far is checkpointed")
			cancel()
		}()

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		manager, _ := newManager(cfg, store)

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s Executing task %s (max %d iterations per subtask)\n",
			yellow("⚡"), args[0], cfg.Refine.MaxIterations)

		t, err := manager.Execute(ctx, args[0])
		if t != nil {
			printExecuteResult(t)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if t != nil && t.Status != task.StatusCompleted {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(executeCmd)
}

// printExecuteResult renders the per-subtask outcome of a run
func printExecuteResult(t *task.Task) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n", cyan("Result:"))
	fmt.Printf("  Task %s is %s %s\n", t.ID, statusBadge(t.Status), t.Status)
	for i, st := range t.Subtasks {
		fmt.Printf("%2d. %s [%s] %s\n", i+1, statusBadge(st.Status), st.Capability, st.Description)
		if st.Iterations > 0 {
			fmt.Printf("      score %.2f after %d iteration(s)\n", st.Score, st.Iterations)
		}
		if st.Error != "" {
			fmt.Printf("      error: %s\n", st.Error)
		}
	}

	if t.Status == task.StatusCompleted {
		fmt.Printf("\n%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("aim output "+t.ID))
		fmt.Printf("  %s\n", gray("aim review "+t.ID+" \"<your feedback>\""))
	}
	fmt.Println()
}
