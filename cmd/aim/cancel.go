package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task that has not finished",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		manager, _ := newManager(cfg, store)

		if err := manager.Cancel(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Cancelled task %s\n", green("✓"), args[0])
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
