// Package config loads the root configuration for aim. Settings come
// from AIM_-prefixed environment variables, ~/.aim/config.yaml, and
// built-in defaults, in that order of precedence. The agent bindings
// file (~/.aim/agents.yaml) is separate and owned by internal/agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/steveyegge/aim/internal/agent"
	"github.com/steveyegge/aim/internal/refine"
)

// Config holds all configuration for aim.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Refine   RefineConfig   `mapstructure:"refine"`
	API      APIConfig      `mapstructure:"api"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// DatabaseConfig selects and locates the storage backend.
type DatabaseConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `mapstructure:"backend"`
	// Path is the SQLite database file. Empty defers to the discovery
	// chain: --db flag, AIM_DB, then ~/.aim/aim.db.
	Path     string         `mapstructure:"path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds connection settings for the postgres backend.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RefineConfig bounds refinement runs.
type RefineConfig struct {
	MaxIterations  int `mapstructure:"max_iterations"`
	FeedbackWindow int `mapstructure:"feedback_window"`
}

// APIConfig holds Anthropic API settings.
type APIConfig struct {
	// APIKey falls back to ANTHROPIC_API_KEY when empty.
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	MaxTokens         int64         `mapstructure:"max_tokens"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// AuditConfig selects the audit trail backend.
type AuditConfig struct {
	// Sink is "jsonl" or "bolt".
	Sink string `mapstructure:"sink"`
	// Dir overrides the JSONL log directory (default ~/.aim/logs).
	Dir string `mapstructure:"dir"`
	// BoltPath overrides the bolt database file (default ~/.aim/audit.db).
	BoltPath string `mapstructure:"bolt_path"`
}

// Dir returns the aim configuration directory, ~/.aim.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".aim"), nil
}

// Path returns the root config file path, ~/.aim/config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads ~/.aim/config.yaml, applies environment overrides, and
// fills defaults. A missing config file is not an error.
func Load() (*Config, error) {
	v := newViper()

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath reads an exact config file. Environment overrides and
// defaults apply the same as Load.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

// Save writes the configuration to path, creating parent directories as
// needed. Used by `aim init` to seed a file the user can edit. Secrets
// (API key, database password) are env-only and never written to disk.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.Set("database.backend", cfg.Database.Backend)
	if cfg.Database.Path != "" {
		v.Set("database.path", cfg.Database.Path)
	}
	v.Set("database.postgres.host", cfg.Database.Postgres.Host)
	v.Set("database.postgres.port", cfg.Database.Postgres.Port)
	v.Set("database.postgres.database", cfg.Database.Postgres.Database)
	v.Set("database.postgres.user", cfg.Database.Postgres.User)
	v.Set("database.postgres.sslmode", cfg.Database.Postgres.SSLMode)
	v.Set("refine.max_iterations", cfg.Refine.MaxIterations)
	v.Set("refine.feedback_window", cfg.Refine.FeedbackWindow)
	v.Set("api.model", cfg.API.Model)
	v.Set("api.max_retries", cfg.API.MaxRetries)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.max_concurrent", cfg.API.MaxConcurrent)
	v.Set("api.requests_per_minute", cfg.API.RequestsPerMinute)
	v.Set("audit.sink", cfg.Audit.Sink)

	return v.WriteConfig()
}

// Default returns the built-in defaults without reading any file.
func Default() *Config {
	retry := agent.DefaultRetryConfig()
	return &Config{
		Database: DatabaseConfig{
			Backend: "sqlite",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "aim",
				User:     "aim",
				SSLMode:  "prefer",
			},
		},
		Refine: RefineConfig{
			MaxIterations:  refine.DefaultMaxIterations,
			FeedbackWindow: refine.DefaultFeedbackWindow,
		},
		API: APIConfig{
			MaxRetries:        retry.MaxRetries,
			Timeout:           retry.Timeout,
			MaxConcurrent:     retry.MaxConcurrentCalls,
			RequestsPerMinute: retry.RequestsPerMinute,
		},
		Audit: AuditConfig{
			Sink: "jsonl",
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The standard SDK variable works without the AIM_ prefix
	v.BindEnv("api.api_key", "ANTHROPIC_API_KEY", "AIM_API_API_KEY")

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.API.APIKey = os.ExpandEnv(cfg.API.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.backend", "sqlite")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "aim")
	v.SetDefault("database.postgres.user", "aim")
	v.SetDefault("database.postgres.sslmode", "prefer")

	v.SetDefault("refine.max_iterations", refine.DefaultMaxIterations)
	v.SetDefault("refine.feedback_window", refine.DefaultFeedbackWindow)

	retry := agent.DefaultRetryConfig()
	v.SetDefault("api.max_retries", retry.MaxRetries)
	v.SetDefault("api.timeout", retry.Timeout.String())
	v.SetDefault("api.max_concurrent", retry.MaxConcurrentCalls)
	v.SetDefault("api.requests_per_minute", retry.RequestsPerMinute)

	v.SetDefault("audit.sink", "jsonl")
}
