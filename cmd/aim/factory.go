package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/audit"
	"github.com/steveyegge/aim/internal/config"
	"github.com/steveyegge/aim/internal/refine"
	"github.com/steveyegge/aim/internal/review"
	"github.com/steveyegge/aim/internal/storage"
	"github.com/steveyegge/aim/internal/storage/postgres"
	"github.com/steveyegge/aim/internal/task"
)

// loadConfig loads the layered settings. A malformed config file is fatal;
// a missing one falls back to defaults inside config.Load.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// storageConfig maps settings and the --db flag onto a storage config
func storageConfig(cfg *config.Config) *storage.Config {
	sc := storage.DefaultConfig()
	if cfg.Database.Backend != "" {
		sc.Backend = storage.Backend(cfg.Database.Backend)
	}

	if sc.Backend == storage.BackendPostgres {
		pg := postgres.DefaultConfig()
		if cfg.Database.Postgres.Host != "" {
			pg.Host = cfg.Database.Postgres.Host
		}
		if cfg.Database.Postgres.Port != 0 {
			pg.Port = cfg.Database.Postgres.Port
		}
		if cfg.Database.Postgres.Database != "" {
			pg.Database = cfg.Database.Postgres.Database
		}
		if cfg.Database.Postgres.User != "" {
			pg.User = cfg.Database.Postgres.User
		}
		if cfg.Database.Postgres.Password != "" {
			pg.Password = cfg.Database.Postgres.Password
		}
		if cfg.Database.Postgres.SSLMode != "" {
			pg.SSLMode = cfg.Database.Postgres.SSLMode
		}
		sc.Postgres = pg
		return sc
	}

	path, err := storage.DiscoverPath(dbFlag, cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sc.Path = path
	return sc
}

// openStore opens the configured storage backend, exiting on failure
func openStore(ctx context.Context, cfg *config.Config) storage.Storage {
	store, err := storage.NewStorage(ctx, storageConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open storage: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'aim init' to create a database, or pass --db.\n")
		os.Exit(1)
	}
	return store
}

// openSink builds the configured audit sink
func openSink(cfg *config.Config) audit.Sink {
	switch cfg.Audit.Sink {
	case "bolt":
		path := cfg.Audit.BoltPath
		if path == "" {
			dir, err := config.Dir()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			path = filepath.Join(dir, "audit.db")
		}
		sink, err := audit.NewBoltSink(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open audit store: %v\n", err)
			os.Exit(1)
		}
		return sink
	default:
		dir := cfg.Audit.Dir
		if dir == "" {
			d, err := audit.DefaultLogDir()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			dir = d
		}
		sink, err := audit.NewFileSink(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open audit log: %v\n", err)
			os.Exit(1)
		}
		return sink
	}
}

// clientConfig maps API settings onto the agent client configuration
func clientConfig(cfg *config.Config) *agent.ClientConfig {
	retry := agent.DefaultRetryConfig()
	if cfg.API.MaxRetries > 0 {
		retry.MaxRetries = cfg.API.MaxRetries
	}
	if cfg.API.Timeout > 0 {
		retry.Timeout = cfg.API.Timeout
	}
	if cfg.API.MaxConcurrent > 0 {
		retry.MaxConcurrentCalls = cfg.API.MaxConcurrent
	}
	if cfg.API.RequestsPerMinute > 0 {
		retry.RequestsPerMinute = cfg.API.RequestsPerMinute
	}
	return &agent.ClientConfig{
		APIKey: cfg.API.APIKey,
		Model:  cfg.API.Model,
		Retry:  retry,
	}
}

// newPortBuilder resolves agents per capability from the bindings file.
// The shared API client is built on first use so CLI-only bindings never
// require an API key.
func newPortBuilder(cfg *config.Config, bindings *agent.Bindings) task.PortBuilder {
	var (
		once      sync.Once
		client    *agent.Client
		clientErr error
	)
	return func(capability agent.Capability) (agent.Port, error) {
		bind := bindings.For(capability)
		if bind.Mode == "" || bind.Mode == "api" {
			once.Do(func() {
				client, clientErr = agent.NewClient(clientConfig(cfg))
			})
			if clientErr != nil {
				return nil, clientErr
			}
		}
		return bindings.Build(capability, client)
	}
}

// newManager wires storage, agents, validation, and auditing into a task
// manager. The returned sink is also handed back so commands that read the
// trail can share it.
func newManager(cfg *config.Config, store storage.Storage) (*task.Manager, audit.Sink) {
	sink := openSink(cfg)

	path, err := agent.BindingsPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	bindings, err := agent.LoadBindings(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load agent bindings: %v\n", err)
		os.Exit(1)
	}

	ports := newPortBuilder(cfg, bindings)

	// The semantic review pass reuses the review capability's agent. A
	// CLI-bound review agent cannot act as a reviewer, so validation
	// degrades to the structural pass only.
	var reviewer review.Reviewer
	if bind := bindings.For(agent.CapReview); bind.Mode == "" || bind.Mode == "api" {
		reviewer = &lazyReviewer{ports: ports}
	}

	manager, err := task.NewManager(task.ManagerConfig{
		Store:     store,
		Sink:      sink,
		Ports:     ports,
		Validator: review.NewValidator(reviewer),
		Refine: refine.Options{
			MaxIterations:  cfg.Refine.MaxIterations,
			FeedbackWindow: cfg.Refine.FeedbackWindow,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create task manager: %v\n", err)
		os.Exit(1)
	}
	return manager, sink
}

// lazyReviewer resolves the review agent on first use so commands that
// never validate anything (list, status, output) do not need an API key.
type lazyReviewer struct {
	ports task.PortBuilder
	once  sync.Once
	rev   review.Reviewer
	err   error
}

func (l *lazyReviewer) Review(ctx context.Context, prompt string) (string, error) {
	l.once.Do(func() {
		port, err := l.ports(agent.CapReview)
		if err != nil {
			l.err = err
			return
		}
		rev, ok := port.(review.Reviewer)
		if !ok {
			l.err = fmt.Errorf("review agent does not support semantic review")
			return
		}
		l.rev = rev
	})
	if l.err != nil {
		return "", l.err
	}
	return l.rev.Review(ctx, prompt)
}
