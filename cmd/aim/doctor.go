package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/audit"
	"github.com/steveyegge/aim/internal/config"
	"github.com/steveyegge/aim/internal/storage"
	"github.com/steveyegge/aim/internal/task"
)

// minAgentCLIVersion is the oldest CLI agent version known to handle the
// prompt format delegate agents send.
const minAgentCLIVersion = "v1.0.0"

// staleThreshold is how long a task may sit in_progress without an
// update before doctor flags it as stuck. Iterations checkpoint on
// every boundary, so an hour of silence means the run died.
const staleThreshold = time.Hour

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check AIM installation and environment health",
	Long: `Run health checks to diagnose common configuration and environment
issues.

This command checks for:
- Configuration file validity
- Database existence and accessibility
- Agent bindings and CLI agent availability
- API credentials
- Audit trail location

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent AIM from running`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running AIM health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		// Check 1: Configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		cfg, err := config.Load()
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Config is invalid: %v", err))
			fmt.Printf("  %s Config is invalid\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
			cfg = config.Default()
		} else {
			cfgPath, _ := config.Path()
			if _, statErr := os.Stat(cfgPath); statErr == nil {
				fmt.Printf("  %s Loaded config: %s\n", green("✓"), cfgPath)
			} else {
				fmt.Printf("  %s No config file, using defaults (run 'aim init' to create one)\n", green("✓"))
			}
		}

		// Check 2: Database
		fmt.Printf("%s Database\n", cyan("→"))
		ctx := context.Background()
		if cfg.Database.Backend == string(storage.BackendPostgres) {
			store, err := storage.NewStorage(ctx, storageConfig(cfg))
			if err != nil {
				criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot connect to postgres: %v", err))
				fmt.Printf("  %s Cannot connect to postgres\n", red("✗"))
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				fmt.Printf("  %s Connected to postgres on %s\n", green("✓"), cfg.Database.Postgres.Host)
				reportTaskCounts(ctx, store, verbose, &warnings)
				store.Close()
			}
		} else {
			dbPath, err := storage.DiscoverPath(dbFlag, cfg.Database.Path)
			if err != nil {
				criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot resolve database path: %v", err))
				fmt.Printf("  %s Cannot resolve database path\n", red("✗"))
			} else if info, err := os.Stat(dbPath); err != nil {
				criticalFailures = append(criticalFailures, fmt.Sprintf("Database not found at %s (run 'aim init')", dbPath))
				fmt.Printf("  %s Database not found: %s\n", red("✗"), dbPath)
			} else {
				fmt.Printf("  %s Database file accessible (%d bytes)\n", green("✓"), info.Size())
				if info.Size() == 0 {
					warnings = append(warnings, "Database file is empty (0 bytes)")
					fmt.Printf("  %s WARNING: Database is empty\n", yellow("⚠"))
				}
				store, err := storage.NewStorage(ctx, storageConfig(cfg))
				if err != nil {
					failures = append(failures, fmt.Sprintf("Cannot open database: %v", err))
					fmt.Printf("  %s Cannot open database\n", red("✗"))
					if verbose {
						fmt.Printf("    Error: %v\n", err)
					}
				} else {
					reportTaskCounts(ctx, store, verbose, &warnings)
					store.Close()
				}
			}
		}

		// Check 3: Agent bindings
		fmt.Printf("%s Agent bindings\n", cyan("→"))
		needsAPI := true // assume the worst when bindings cannot be read
		bindingsPath, _ := agent.BindingsPath()
		bindings, err := agent.LoadBindings(bindingsPath)
		if err != nil {
			failures = append(failures, fmt.Sprintf("Agent bindings are invalid: %v", err))
			fmt.Printf("  %s Agent bindings are invalid\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Agent bindings loaded\n", green("✓"))
			needsAPI = false
			checked := map[string]bool{}
			for _, capability := range agent.AllCapabilities() {
				bind := bindings.For(capability)
				if verbose {
					fmt.Printf("    %s: %s\n", capability, describeBinding(bind))
				}
				if bind.Mode == "" || bind.Mode == "api" {
					needsAPI = true
					continue
				}
				if bind.Mode == "cli" && !checked[bind.Command] {
					checked[bind.Command] = true
					if _, err := exec.LookPath(bind.Command); err != nil {
						failures = append(failures, fmt.Sprintf("CLI agent %q not found in PATH", bind.Command))
						fmt.Printf("  %s CLI agent %q not found in PATH\n", red("✗"), bind.Command)
						continue
					}
					ver, err := cliAgentVersion(bind.Command)
					if err != nil {
						warnings = append(warnings, fmt.Sprintf("Cannot determine %q version: %v", bind.Command, err))
						fmt.Printf("  %s CLI agent %q found, version unknown\n", yellow("⚠"), bind.Command)
					} else if semver.Compare(ver, minAgentCLIVersion) < 0 {
						warnings = append(warnings, fmt.Sprintf("CLI agent %q is %s, older than %s", bind.Command, ver, minAgentCLIVersion))
						fmt.Printf("  %s CLI agent %q is %s (want >= %s)\n", yellow("⚠"), bind.Command, ver, minAgentCLIVersion)
					} else {
						fmt.Printf("  %s CLI agent %q %s\n", green("✓"), bind.Command, ver)
					}
				}
			}
		}

		// Check 4: API credentials
		fmt.Printf("%s API credentials\n", cyan("→"))
		apiKey := cfg.API.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			if needsAPI {
				failures = append(failures, "ANTHROPIC_API_KEY not set")
				fmt.Printf("  %s ANTHROPIC_API_KEY not set\n", red("✗"))
				fmt.Printf("    API-bound agents will not run\n")
			} else {
				fmt.Printf("  %s No API key, but no capability is API-bound\n", green("✓"))
			}
		} else {
			fmt.Printf("  %s API key is set\n", green("✓"))
			if verbose && len(apiKey) > 14 {
				fmt.Printf("    Key: %s...%s\n", apiKey[:10], apiKey[len(apiKey)-4:])
			}
		}

		// Check 5: Audit trail
		fmt.Printf("%s Audit trail\n", cyan("→"))
		switch cfg.Audit.Sink {
		case "bolt":
			fmt.Printf("  %s Using bolt sink\n", green("✓"))
		case "", "jsonl":
			dir := cfg.Audit.Dir
			if dir == "" {
				dir, _ = audit.DefaultLogDir()
			}
			if entries, err := os.ReadDir(dir); err == nil {
				fmt.Printf("  %s Log directory %s (%d trail(s))\n", green("✓"), dir, len(entries))
			} else {
				fmt.Printf("  %s Log directory %s will be created on first run\n", green("✓"), dir)
			}
		default:
			failures = append(failures, fmt.Sprintf("Unknown audit sink %q", cfg.Audit.Sink))
			fmt.Printf("  %s Unknown audit sink %q (want jsonl or bolt)\n", red("✗"), cfg.Audit.Sink)
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		totalIssues := len(criticalFailures) + len(failures) + len(warnings)
		if totalIssues == 0 {
			fmt.Printf("%s All checks passed! AIM is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s Critical failures (%d):\n", red("✗"), len(criticalFailures))
			for _, failure := range criticalFailures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, failure := range failures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, warning := range warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s AIM cannot run until critical issues are resolved.\n", red("✗"))
			os.Exit(2)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s AIM may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}

		fmt.Printf("\n%s AIM should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	rootCmd.AddCommand(doctorCmd)
}

// reportTaskCounts prints the task count and per-status breakdown
func reportTaskCounts(ctx context.Context, store storage.Storage, verbose bool, warnings *[]string) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	tasks, err := store.ListTasks(ctx, task.Filter{})
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("Cannot query tasks: %v", err))
		fmt.Printf("  %s Cannot query tasks\n", yellow("⚠"))
		return
	}
	fmt.Printf("  %s Database contains %d task(s)\n", green("✓"), len(tasks))

	stale := 0
	for _, t := range tasks {
		if t.Status == task.StatusInProgress && time.Since(t.UpdatedAt) > staleThreshold {
			stale++
		}
	}
	if stale > 0 {
		*warnings = append(*warnings, fmt.Sprintf("%d task(s) stuck in_progress", stale))
		fmt.Printf("  %s %d task(s) in_progress with no update for over %s (re-run 'aim execute' or 'aim cancel')\n",
			yellow("⚠"), stale, staleThreshold)
	}

	if verbose && len(tasks) > 0 {
		statusCounts := make(map[string]int)
		for _, t := range tasks {
			statusCounts[string(t.Status)]++
		}
		for status, count := range statusCounts {
			fmt.Printf("    %s: %d\n", status, count)
		}
	}
}

// describeBinding renders a binding for verbose output
func describeBinding(bind agent.Binding) string {
	switch bind.Mode {
	case "cli":
		return fmt.Sprintf("cli (%s)", bind.Command)
	default:
		if bind.Model != "" {
			return fmt.Sprintf("api (%s)", bind.Model)
		}
		return "api"
	}
}

// cliAgentVersion runs `<command> --version` and extracts a semver string
func cliAgentVersion(command string) (string, error) {
	out, err := exec.Command(command, "--version").Output()
	if err != nil {
		return "", err
	}
	for _, field := range strings.Fields(strings.TrimSpace(string(out))) {
		v := field
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if semver.IsValid(v) {
			return v, nil
		}
	}
	return "", fmt.Errorf("no version number in output")
}
