// Package repl implements the interactive shell. It wraps the task
// manager's operations in a readline loop so tasks can be created,
// executed, and reviewed without leaving one session.
package repl

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/aim/internal/config"
	"github.com/steveyegge/aim/internal/task"
)

// REPL represents the interactive shell
type REPL struct {
	manager  *task.Manager
	rl       *readline.Instance
	ctx      context.Context
	version  string
	commands map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Manager *task.Manager
	Version string
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg == nil || cfg.Manager == nil {
		return nil, fmt.Errorf("task manager is required")
	}

	r := &REPL{
		manager:  cfg.Manager,
		version:  cfg.Version,
		commands: make(map[string]CommandHandler),
	}

	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	prompt := cyan("aim> ")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyPath(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show prompt again
				continue
			} else if err == io.EOF {
				// Ctrl+D - exit
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				// Exit command - graceful shutdown
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s Unknown command %q. Type 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["create"] = r.cmdCreate
	r.commands["execute"] = r.cmdExecute
	r.commands["status"] = r.cmdStatus
	r.commands["output"] = r.cmdOutput
	r.commands["review"] = r.cmdReview
	r.commands["list"] = r.cmdList
	r.commands["cancel"] = r.cmdCancel
	r.commands["delete"] = r.cmdDelete
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

// historyPath returns the readline history file, or "" for in-memory
// history when the config directory cannot be resolved.
func historyPath() string {
	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "repl_history")
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	banner := "Welcome to AIM"
	if r.version != "" {
		banner = fmt.Sprintf("Welcome to AIM v%s", r.version)
	}
	fmt.Printf("\n%s\n", cyan(banner))
	fmt.Println("Agent-driven iteration manager")
	fmt.Println()
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Available Commands:"))
	fmt.Println()

	commands := []struct {
		name string
		desc string
	}{
		{"create <description>", "Create a task and decompose it into subtasks"},
		{"execute <task-id>", "Run the task's refinement loops"},
		{"status <task-id>", "Show task and subtask state"},
		{"output <task-id>", "Print the task's final output"},
		{"review <task-id> <feedback>", "Re-run refinement with your feedback"},
		{"list [status]", "List tasks, optionally filtered by status"},
		{"cancel <task-id>", "Cancel a pending task"},
		{"delete <task-id>", "Delete a task"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the REPL"},
	}

	for _, cmd := range commands {
		fmt.Printf("  %-30s %s\n", green(cmd.name), cmd.desc)
	}

	fmt.Println()
	fmt.Println("Constraints are parsed straight from the description:")
	fmt.Println("  create Implement a rate limiter in Go with >90% test coverage")
	fmt.Println()

	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Goodbye!\n", green("✓"))
	r.rl.Close()
	return io.EOF // Signal to exit the loop
}
