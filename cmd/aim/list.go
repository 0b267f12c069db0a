package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/aim/internal/task"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		var filter task.Filter
		if statusFilter != "" {
			s := task.Status(statusFilter)
			if !s.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: unknown status %q (pending, in_progress, completed, failed, cancelled)\n", statusFilter)
				os.Exit(1)
			}
			filter.Status = s
		}
		if limit > 0 {
			filter.Limit = limit
		}

		ctx := context.Background()

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		manager, _ := newManager(cfg, store)

		tasks, err := manager.List(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list tasks: %v\n", err)
			os.Exit(1)
		}

		if len(tasks) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("No tasks found. %s\n", gray("Create one with 'aim create \"...\"'"))
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n", cyan(fmt.Sprintf("Tasks (%d):", len(tasks))))
		for i, t := range tasks {
			fmt.Printf("%2d. %s %s  %s\n", i+1, statusBadge(t.Status), t.ID, truncate(t.Description, 48))
		}
		fmt.Println()
	},
}

func init() {
	listCmd.Flags().StringP("status", "s", "", "Filter by status: pending, in_progress, completed, failed, cancelled")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of tasks to show (0 = all)")
	rootCmd.AddCommand(listCmd)
}
