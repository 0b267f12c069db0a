package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Model selection is tiered by task weight: the default model carries
// generation and review, the simple model handles cheap classification work.
//
// Environment overrides:
//   - AIM_MODEL_DEFAULT: override the default model
//   - AIM_MODEL_SIMPLE: override the simple-task model
const (
	// ModelSonnet is the high-end model for generation and review
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for simple tasks
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the default model, honoring AIM_MODEL_DEFAULT
func GetDefaultModel() string {
	if model := os.Getenv("AIM_MODEL_DEFAULT"); model != "" {
		return model
	}
	return ModelSonnet
}

// GetSimpleTaskModel returns the simple-task model, honoring AIM_MODEL_SIMPLE
func GetSimpleTaskModel() string {
	if model := os.Getenv("AIM_MODEL_SIMPLE"); model != "" {
		return model
	}
	return ModelHaiku
}

// Client wraps the Anthropic API with retry, circuit breaking, a concurrency
// cap, and a rate limiter. All agent implementations in this package share
// one Client so the limits hold process-wide.
type Client struct {
	api     *anthropic.Client
	model   string
	retry   RetryConfig
	breaker *CircuitBreaker
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// ClientConfig holds Client construction options
type ClientConfig struct {
	APIKey string // if empty, read from ANTHROPIC_API_KEY
	Model  string // default model (default: GetDefaultModel())
	Retry  RetryConfig
}

// NewClient creates an API client. The API key comes from the config or the
// ANTHROPIC_API_KEY environment variable.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	api := anthropic.NewClient(option.WithAPIKey(apiKey))

	var breaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		breaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	var limiter *rate.Limiter
	if retry.RequestsPerMinute > 0 {
		burst := retry.RequestsPerMinute / 6
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(retry.RequestsPerMinute)/60.0), burst)
	}

	return &Client{
		api:     &api,
		model:   model,
		retry:   retry,
		breaker: breaker,
		sem:     sem,
		limiter: limiter,
	}, nil
}

// Model returns the client's default model
func (c *Client) Model() string { return c.model }

// HealthCheck fails when the circuit breaker is rejecting calls
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.breaker != nil {
		state, failures, _ := c.breaker.Metrics()
		if state == CircuitOpen {
			return fmt.Errorf("API client unavailable: %w (failures=%d, retry in %v)",
				ErrCircuitOpen, failures, c.retry.OpenTimeout)
		}
	}
	return nil
}

// CompletionRequest is one prompt/response exchange
type CompletionRequest struct {
	Model     string // empty = client default
	System    string
	Prompt    string
	MaxTokens int64 // 0 = 4096
}

// Complete sends a single-turn message and returns the concatenated text
// blocks of the reply. Errors come back classified into the transient/fatal
// taxonomy.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var out string
	err := c.retryWithBackoff(ctx, "completion", func(ctx context.Context) error {
		message, err := c.api.Messages.New(ctx, params)
		if err != nil {
			return err
		}

		var b strings.Builder
		for _, block := range message.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		out = b.String()
		if strings.TrimSpace(out) == "" {
			return Transient(fmt.Errorf("model returned no text content"))
		}

		slog.Debug("completion finished",
			"model", model,
			"input_tokens", message.Usage.InputTokens,
			"output_tokens", message.Usage.OutputTokens)
		return nil
	})
	if err != nil {
		return "", Classify(err)
	}
	return out, nil
}
