package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review <task-id> <feedback>",
	Short: "Re-run refinement with your feedback",
	Long: `Run one more refinement pass over a finished task, seeded with your
feedback instead of synthesized feedback. The task's constraints still
apply; the best output of the pass replaces the task's final output.

Example:
  aim review 4f1c... "Use exponential backoff instead of fixed delays"`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		id := args[0]
		feedback := strings.Join(args[1:], " ")

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		manager, _ := newManager(cfg, store)

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s Re-refining task %s with your feedback\n", yellow("⚡"), id)

		_, res, err := manager.Review(ctx, id, feedback)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Review pass finished: %s after %d iteration(s)\n",
			green("✓"), res.State, res.TotalIterations)
		if best := res.Best(); best != nil && best.Validation != nil {
			fmt.Printf("  Best score: %.2f\n", best.Validation.Score)
		}
		fmt.Printf("\n%s aim output %s\n\n", gray("→"), id)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
