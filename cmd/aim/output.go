package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var outputCmd = &cobra.Command{
	Use:   "output <task-id>",
	Short: "Print the task's final output",
	Long: `Print the task's final output to stdout.

The output is the joined result of every subtask, in dependency order,
so it can be piped into a file or another tool:

  aim output 4f1c... > result.md`,
	Args: cobra.ExactArgs(1),
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

		if t.FinalOutput == "" {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s Task %s has no output yet (status: %s)\n", yellow("ℹ"), t.ID, t.Status)
			fmt.Fprintf(os.Stderr, "Run 'aim execute %s' first.\n", t.ID)
			os.Exit(1)
		}

		fmt.Println(t.FinalOutput)
	},
}

func init() {
	rootCmd.AddCommand(outputCmd)
}
