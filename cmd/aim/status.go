package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/aim/internal/task"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show task and subtask state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		manager, _ := newManager(cfg, store)

		t, err := manager.Get(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

		fmt.Printf("\n%s\n", cyan("Task "+t.ID))
		fmt.Printf("  Description: %s\n", t.Description)
		fmt.Printf("  Status:      %s %s\n", statusBadge(t.Status), t.Status)
		fmt.Printf("  Created:     %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("  Updated:     %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

		if len(t.Context) > 0 {
			fmt.Printf("\nContext:\n")
			for k, v := range t.Context {
				fmt.Printf("  %s: %s\n", k, v)
			}
		}

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
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
