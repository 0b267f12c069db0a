package main

import (
	"testing"

	"github.com/steveyegge/aim/internal/agent"
)

func TestDescribeBinding(t *testing.T) {
	tests := []struct {
		name     string
		bind     agent.Binding
		expected string
	}{
		{
			name:     "api default",
			bind:     agent.Binding{Mode: "api"},
			expected: "api",
		},
		{
			name:     "api with model",
			bind:     agent.Binding{Mode: "api", Model: "claude-3-5-haiku-20241022"},
			expected: "api (claude-3-5-haiku-20241022)",
		},
		{
			name:     "cli",
			bind:     agent.Binding{Mode: "cli", Command: "claude"},
			expected: "cli (claude)",
		},
		{
			name:     "empty mode reads as api",
			bind:     agent.Binding{},
			expected: "api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeBinding(tt.bind)
			if got != tt.expected {
				t.Errorf("describeBinding() = %q, want %q", got, tt.expected)
			}
		})
	}
}
