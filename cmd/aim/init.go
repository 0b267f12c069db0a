package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/config"
	"github.com/steveyegge/aim/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up the database, config, and agent bindings",
	Long: `Initialize AIM by creating:
  - the task database (default ~/.aim/aim.db)
  - ~/.aim/config.yaml with the default settings
  - ~/.aim/agents.yaml with the default capability-to-agent bindings

Existing config files are left untouched. Init refuses to reuse an
existing database; pass --db to create one somewhere else.

With the postgres backend (AIM_DATABASE_BACKEND=postgres) the schema is
created on the configured server instead of a local file.

Example:
  aim init
  aim init --db ./project-tasks.db`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Println()

		// Database
		if cfg.Database.Backend == string(storage.BackendPostgres) {
			store, err := storage.NewStorage(ctx, storageConfig(cfg))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to initialize postgres schema: %v\n", err)
				os.Exit(1)
			}
			_ = store.Close()
			fmt.Printf("%s Postgres schema ready on %s\n", green("✓"), cyan(cfg.Database.Postgres.Host))
		} else {
			path, err := storage.DiscoverPath(dbFlag, cfg.Database.Path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			created, err := storage.Init(ctx, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Created database %s\n", green("✓"), cyan(created))
			if dbFlag != "" {
				cfg.Database.Path = dbFlag
			}
		}

		// Config file
		cfgPath, err := config.Path()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := config.Save(cfg, cfgPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Wrote config %s\n", green("✓"), cyan(cfgPath))
		} else {
			fmt.Printf("%s Config already exists: %s\n", gray("○"), cfgPath)
		}

		// Agent bindings
		bindingsPath, err := agent.BindingsPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if _, err := os.Stat(bindingsPath); os.IsNotExist(err) {
			if err := agent.SaveDefault(bindingsPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write agent bindings: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Wrote agent bindings %s\n", green("✓"), cyan(bindingsPath))
		} else {
			fmt.Printf("%s Agent bindings already exist: %s\n", gray("○"), bindingsPath)
		}

		if os.Getenv("ANTHROPIC_API_KEY") == "" && cfg.API.APIKey == "" {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s ANTHROPIC_API_KEY is not set; API-bound agents will not run\n", yellow("⚠"))
		}

		fmt.Printf("\n%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray(`aim create "Implement a rate limiter in Go with >90% test coverage"`))
		fmt.Printf("  %s\n", gray("aim doctor"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
