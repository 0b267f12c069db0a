package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/aim/internal/audit"
)

var tailCmd = &cobra.Command{
	Use:   "tail <task-id>",
	Short: "Show a task's audit trail",
	Long: `Display the audit trail of a task: every iteration, validation
verdict, convergence, and failure, in the order they happened.

With --follow the trail is polled for new events until Ctrl+C, which is
useful alongside a running 'aim execute' in another terminal.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		follow, _ := cmd.Flags().GetBool("follow")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		cfg := loadConfig()

		trail, ok := openSink(cfg).(audit.Trail)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: audit sink %q cannot be read back\n", cfg.Audit.Sink)
			os.Exit(1)
		}

		if follow {
			runTailFollow(ctx, trail, args[0], limit)
		} else {
			runTailOnce(ctx, trail, args[0], limit)
		}
	},
}

func init() {
	tailCmd.Flags().BoolP("follow", "f", false, "Follow mode - watch for new events (Ctrl+C to stop)")
	tailCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show initially (0 = all)")
	rootCmd.AddCommand(tailCmd)
}

// runTailOnce shows recent events and exits
func runTailOnce(ctx context.Context, trail audit.Trail, taskID string, limit int) {
	events, err := trail.ReadTrail(ctx, taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s No events found for task %s\n\n", yellow("✨"), taskID)
		return
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	for _, event := range events {
		displayEvent(event)
	}
}

// runTailFollow shows recent events and keeps polling for new ones
func runTailFollow(ctx context.Context, trail audit.Trail, taskID string, initialLimit int) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("\n%s Following task %s (Ctrl+C to stop)...\n\n", cyan("👁"), taskID)

	events, err := trail.ReadTrail(ctx, taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
		os.Exit(1)
	}

	seen := len(events)
	shown := events
	if initialLimit > 0 && len(shown) > initialLimit {
		shown = shown[len(shown)-initialLimit:]
	}
	for _, event := range shown {
		displayEvent(event)
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nStopped following")
			return
		case <-ticker.C:
			events, err := trail.ReadTrail(ctx, taskID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nError fetching new events: %v\n", err)
				continue
			}
			// The trail is append-only, so anything past the last count is
			// new.
			start := seen
			if start > len(events) {
				start = len(events)
			}
			for _, event := range events[start:] {
				displayEvent(event)
			}
			seen = len(events)
		}
	}
}

// displayEvent formats and prints a single event with color
func displayEvent(event audit.Event) {
	var icon string
	var typeColor *color.Color

	switch event.Type {
	case audit.EventConverged, audit.EventSubtaskCompleted, audit.EventTaskCompleted:
		icon = color.New(color.FgGreen).Sprint("✓")
		typeColor = color.New(color.FgGreen)
	case audit.EventIterationFailed, audit.EventSubtaskFailed, audit.EventTaskFailed:
		icon = color.New(color.FgRed).Sprint("✗")
		typeColor = color.New(color.FgRed)
	case audit.EventMaxIterationsReached:
		icon = color.New(color.FgYellow).Sprint("⚠")
		typeColor = color.New(color.FgYellow)
	case audit.EventIterationStart, audit.EventSubtaskStarted:
		icon = color.New(color.FgCyan).Sprint("ℹ")
		typeColor = color.New(color.FgCyan)
	default:
		icon = "•"
		typeColor = color.New(color.FgMagenta)
	}

	fmt.Printf("%s [%s] %s\n",
		icon,
		event.Timestamp.Local().Format("15:04:05"),
		typeColor.Sprint(event.Type),
	)

	if len(event.Data) > 0 {
		gray := color.New(color.FgHiBlack)
		for key, value := range event.Data {
			fmt.Printf("    %s: %v\n", gray.Sprint(key), value)
		}
	}
}
