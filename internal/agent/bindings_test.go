package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBindingsMissingFile(t *testing.T) {
	b, err := LoadBindings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err, "Missing file should fall back to defaults")
	assert.Equal(t, "api", b.Default.Mode)
}

func TestLoadBindingsParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `default:
  mode: api
capabilities:
  coding:
    mode: cli
    command: claude
    timeout: 15m
  documentation:
    mode: api
    model: claude-3-5-haiku-20241022
    max_tokens: 2048
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := LoadBindings(path)
	require.NoError(t, err)

	coding := b.For(CapCoding)
	assert.Equal(t, "cli", coding.Mode)
	assert.Equal(t, "claude", coding.Command)
	assert.Equal(t, "15m", coding.Timeout)

	docs := b.For(CapDocumentation)
	assert.Equal(t, "api", docs.Mode)
	assert.Equal(t, ModelHaiku, docs.Model)
	assert.Equal(t, int64(2048), docs.MaxTokens)

	// Unlisted capability falls back to the default
	review := b.For(CapReview)
	assert.Equal(t, "api", review.Mode)
}

func TestLoadBindingsRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: [broken"), 0o644))

	_, err := LoadBindings(path)
	assert.Error(t, err)
}

func TestSaveDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agents.yaml")

	require.NoError(t, SaveDefault(path))

	b, err := LoadBindings(path)
	require.NoError(t, err)
	assert.Equal(t, "api", b.Default.Mode)
	assert.Contains(t, b.Capabilities, string(CapCoding))
}

func TestBindingsBuildCLI(t *testing.T) {
	b := &Bindings{
		Default: Binding{Mode: "api"},
		Capabilities: map[string]Binding{
			string(CapCoding): {Mode: "cli", Command: "claude", Timeout: "5m"},
		},
	}

	port, err := b.Build(CapCoding, nil)
	require.NoError(t, err)

	delegate, ok := port.(*DelegateAgent)
	require.True(t, ok, "cli mode should produce a DelegateAgent")
	assert.Equal(t, CapCoding, delegate.Capability())
	assert.Equal(t, 5*time.Minute, delegate.config.Timeout)
}

func TestBindingsBuildAPIRequiresClient(t *testing.T) {
	b := DefaultBindings()

	_, err := b.Build(CapCoding, nil)
	assert.Error(t, err, "api mode without a client should fail")
}

func TestBindingsBuildUnknownMode(t *testing.T) {
	b := &Bindings{
		Default: Binding{Mode: "telepathy"},
	}

	_, err := b.Build(CapGeneral, nil)
	assert.Error(t, err)
}

func TestParseBindingDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{input: "30s", expected: 30 * time.Second},
		{input: "15m", expected: 15 * time.Minute},
		{input: "2h", expected: 2 * time.Hour},
		{input: "1d", expected: 24 * time.Hour},
		{input: "2w", expected: 14 * 24 * time.Hour},
		{input: "banana", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseBindingDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
