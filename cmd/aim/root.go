package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "0.2.0-dev"

// dbFlag is the --db override, highest precedence in database discovery.
var dbFlag string

var rootCmd = &cobra.Command{
	Use:   "aim",
	Short: "Agent-driven iteration manager",
	Long: `AIM runs agent-driven refinement loops over your tasks.

Describe a task in plain English. AIM parses its constraints, splits it
into capability-scoped subtasks, and drives each through an
execute-validate-refine loop until the constraints hold or the iteration
budget runs out.

Getting started:
  aim init                                                    # set up ~/.aim
  aim create "Implement a rate limiter in Go with >90% test coverage"
  aim execute <task-id>
  aim output <task-id>`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (overrides AIM_DB and the configured path)")
}
