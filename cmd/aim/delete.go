package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Long: `Delete a task from the database. The audit trail is kept; use
'aim tail <task-id>' to inspect what a deleted task did.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		manager, _ := newManager(cfg, store)

		if err := manager.Delete(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted task %s\n", green("✓"), args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
