package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var createContext map[string]string

var createCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Create a task from a plain English description",
	Long: `Create a task. The description is parsed for constraints (coverage
thresholds, language and framework requirements, compliance tags, and
enumerated requirements) and decomposed into capability-scoped subtasks.

The task is persisted as pending; nothing runs until 'aim execute'.

Example:
  aim create "Implement a rate limiter in Go with >90% test coverage"
  aim create "Build a GDPR-compliant signup API" --context repo=github.com/acme/signup`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		description := strings.Join(args, " ")

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()
		manager, _ := newManager(cfg, store)

		t, err := manager.Create(ctx, description, createContext)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create task: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

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

		fmt.Printf("\n%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("aim execute "+t.ID))
		fmt.Printf("  %s\n", gray("aim status "+t.ID))
		fmt.Println()
	},
}

func init() {
	createCmd.Flags().StringToStringVar(&createContext, "context", nil, "Additional key=value context passed to agents (repeatable)")
	rootCmd.AddCommand(createCmd)
}
