package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Bindings maps capabilities to agent configurations loaded from YAML.
// A binding decides whether a capability is served by the API client or
// by delegating to a local CLI, and with what model and limits.
type Bindings struct {
	// Default applies to any capability without an explicit entry.
	Default Binding `yaml:"default"`

	// Capabilities maps capability names to their bindings.
	Capabilities map[string]Binding `yaml:"capabilities"`
}

// Binding configures a single capability's agent.
type Binding struct {
	// Mode is "api" or "cli".
	Mode string `yaml:"mode"`

	// Model overrides the default model for API mode.
	Model string `yaml:"model,omitempty"`

	// MaxTokens caps the response size for API mode.
	MaxTokens int64 `yaml:"max_tokens,omitempty"`

	// Command is the executable for CLI mode, e.g. "claude".
	Command string `yaml:"command,omitempty"`

	// Args are passed to the command before the prompt.
	Args []string `yaml:"args,omitempty"`

	// Timeout bounds a single invocation, e.g. "10m" or "1d".
	Timeout string `yaml:"timeout,omitempty"`
}

// DefaultBindings returns the configuration used when no agents.yaml exists.
func DefaultBindings() *Bindings {
	return &Bindings{
		Default: Binding{Mode: "api"},
		Capabilities: map[string]Binding{
			string(CapCoding):        {Mode: "api"},
			string(CapTesting):       {Mode: "api"},
			string(CapDocumentation): {Mode: "api", Model: GetSimpleTaskModel()},
			string(CapReview):        {Mode: "api"},
			string(CapGeneral):       {Mode: "api"},
		},
	}
}

// BindingsPath returns the default location of the bindings file.
func BindingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".aim", "agents.yaml"), nil
}

// LoadBindings loads agent bindings from a YAML file. A missing file is not
// an error; the defaults are returned instead.
func LoadBindings(path string) (*Bindings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultBindings(), nil
		}
		return nil, fmt.Errorf("reading bindings file: %w", err)
	}

	var b Bindings
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if b.Default.Mode == "" {
		b.Default.Mode = "api"
	}
	return &b, nil
}

// SaveDefault writes the default bindings to path, creating parent
// directories as needed. Used by `aim init` to seed a config the user
// can then edit.
func SaveDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultBindings())
	if err != nil {
		return fmt.Errorf("marshaling defaults: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// For returns the binding for a capability, falling back to the default.
func (b *Bindings) For(capability Capability) Binding {
	if b == nil {
		return Binding{Mode: "api"}
	}
	if bind, ok := b.Capabilities[string(capability)]; ok {
		if bind.Mode == "" {
			bind.Mode = b.Default.Mode
		}
		return bind
	}
	return b.Default
}

// Build constructs the Port for a capability according to its binding.
// API mode shares the provided client; CLI mode spawns the configured
// command per execution.
func (b *Bindings) Build(capability Capability, client *Client) (Port, error) {
	bind := b.For(capability)
	switch bind.Mode {
	case "", "api":
		if client == nil {
			return nil, fmt.Errorf("capability %s bound to api mode but no client configured", capability)
		}
		return NewAPIAgent(client, capability, bind.Model, bind.MaxTokens), nil
	case "cli":
		cfg := DelegateConfig{Command: bind.Command, Args: bind.Args}
		if bind.Timeout != "" {
			timeout, err := parseBindingDuration(bind.Timeout)
			if err != nil {
				return nil, fmt.Errorf("capability %s: invalid timeout %q: %w", capability, bind.Timeout, err)
			}
			cfg.Timeout = timeout
		}
		return NewDelegateAgent(capability, cfg), nil
	default:
		return nil, fmt.Errorf("capability %s: unknown mode %q", capability, bind.Mode)
	}
}

// parseBindingDuration extends time.ParseDuration to support days and weeks.
func parseBindingDuration(s string) (time.Duration, error) {
	var days int
	if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && fmt.Sprintf("%dd", days) == s {
		return time.Duration(days) * 24 * time.Hour, nil
	}
	var weeks int
	if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil && fmt.Sprintf("%dw", weeks) == s {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
