package config

import (
	"fmt"
	"time"
)

// Bounds for the tunable knobs. Zero means "use the built-in default"
// for the API and refine settings, so zero is always in range there.
const (
	maxIterationsLimit  = 100
	feedbackWindowLimit = 50
	maxRetriesLimit     = 20
	maxConcurrentLimit  = 64
	requestsPerMinLimit = 6000
	timeoutLimit        = 30 * time.Minute
)

// Validate checks that every setting is in range. Load and LoadFromPath
// call this after unmarshaling, so a bad config file or environment
// override fails loudly instead of producing a half-working run.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.backend must be \"sqlite\" or \"postgres\" (got %q)",
			c.Database.Backend)
	}

	if c.Database.Backend == "postgres" {
		if p := c.Database.Postgres.Port; p < 1 || p > 65535 {
			return fmt.Errorf("database.postgres.port must be between 1 and 65535 (got %d)", p)
		}
	}

	if n := c.Refine.MaxIterations; n < 1 || n > maxIterationsLimit {
		return fmt.Errorf("refine.max_iterations must be between 1 and %d (got %d)",
			maxIterationsLimit, n)
	}
	if n := c.Refine.FeedbackWindow; n < 0 || n > feedbackWindowLimit {
		return fmt.Errorf("refine.feedback_window must be between 0 and %d (got %d)",
			feedbackWindowLimit, n)
	}

	if c.API.MaxTokens < 0 {
		return fmt.Errorf("api.max_tokens cannot be negative (got %d)", c.API.MaxTokens)
	}
	if n := c.API.MaxRetries; n < 0 || n > maxRetriesLimit {
		return fmt.Errorf("api.max_retries must be between 0 and %d (got %d)",
			maxRetriesLimit, n)
	}
	if d := c.API.Timeout; d < 0 || d > timeoutLimit {
		return fmt.Errorf("api.timeout must be between 0s and %s (got %s)", timeoutLimit, d)
	}
	if n := c.API.MaxConcurrent; n < 0 || n > maxConcurrentLimit {
		return fmt.Errorf("api.max_concurrent must be between 0 and %d (got %d)",
			maxConcurrentLimit, n)
	}
	if n := c.API.RequestsPerMinute; n < 0 || n > requestsPerMinLimit {
		return fmt.Errorf("api.requests_per_minute must be between 0 and %d (got %d)",
			requestsPerMinLimit, n)
	}

	switch c.Audit.Sink {
	case "jsonl", "bolt":
	default:
		return fmt.Errorf("audit.sink must be \"jsonl\" or \"bolt\" (got %q)", c.Audit.Sink)
	}

	return nil
}
