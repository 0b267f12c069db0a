package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseCoverage tests coverage-threshold extraction with comparison direction
func TestParseCoverage(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		threshold float64
		op        Op
	}{
		{
			name:      "bare percentage defaults to >=",
			text:      "Write an add function with 90% coverage",
			threshold: 90,
			op:        OpGTE,
		},
		{
			name:      "bare percentage with test qualifier",
			text:      "needs 85% test coverage",
			threshold: 85,
			op:        OpGTE,
		},
		{
			name:      "strict greater-than before percentage",
			text:      "Write an add function with >90% coverage",
			threshold: 90,
			op:        OpGT,
		},
		{
			name:      "operator after coverage keyword",
			text:      "test coverage > 80% is mandatory",
			threshold: 80,
			op:        OpGT,
		},
		{
			name:      "at least phrasing",
			text:      "coverage at least 75%",
			threshold: 75,
			op:        OpGTE,
		},
		{
			name:      "above phrasing",
			text:      "keep coverage above 95%",
			threshold: 95,
			op:        OpGT,
		},
		{
			name:      "fractional threshold",
			text:      "coverage >= 87.5%",
			threshold: 87.5,
			op:        OpGTE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := Parse(tt.text)
			require.Len(t, cs, 1)
			assert.Equal(t, KindCoverage, cs[0].Kind)
			assert.Equal(t, tt.threshold, cs[0].Params.Threshold)
			assert.Equal(t, tt.op, cs[0].Params.Op)
			assert.True(t, cs[0].Required)
		})
	}
}

// TestParseMalformedCoverage verifies degradation: bad numerics become custom
// constraints instead of being dropped or producing a bogus threshold
func TestParseMalformedCoverage(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "doubled percent", text: "needs 90%% coverage"},
		{name: "doubled percent with operator", text: "coverage > 90%%"},
		{name: "threshold over 100", text: "coverage at least 150%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := Parse(tt.text)
			require.Len(t, cs, 1)
			assert.Equal(t, KindCustom, cs[0].Kind)
			assert.True(t, cs[0].Required)
			assert.NotEmpty(t, cs[0].RawText)
			for _, c := range cs {
				assert.NotEqual(t, KindCoverage, c.Kind)
			}
		})
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		token string
	}{
		{name: "using TypeScript", text: "Implement the client using TypeScript", token: "TypeScript"},
		{name: "in Go", text: "Write the server in Go", token: "Go"},
		{name: "lowercase normalized", text: "write it in rust", token: "Rust"},
		{name: "c++ token", text: "implement the codec in C++", token: "C++"},
		{name: "strict mode", text: "TypeScript strict mode is expected", token: "TypeScript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := Parse(tt.text)
			require.NotEmpty(t, cs)
			assert.Equal(t, KindLanguage, cs[0].Kind)
			assert.Equal(t, tt.token, cs[0].Params.Token)
		})
	}
}

func TestParseLanguageNoFalsePositive(t *testing.T) {
	// "Going" must not match the Go token even after a trigger word
	cs := Parse("fill in Going-forward notes")
	assert.Empty(t, cs)
}

func TestParseFramework(t *testing.T) {
	cs := Parse("Integrate payments using Stripe SDK")
	require.Len(t, cs, 1)
	assert.Equal(t, KindFramework, cs[0].Kind)
	assert.Equal(t, "Stripe", cs[0].Params.Token)

	cs = Parse("build the UI using React Native framework")
	require.Len(t, cs, 1)
	assert.Equal(t, KindFramework, cs[0].Kind)
	assert.Equal(t, "React Native", cs[0].Params.Token)
}

func TestParseCompliance(t *testing.T) {
	cs := Parse("The handler must be GDPR compliant and support OAuth2 compliance checks")
	require.Len(t, cs, 2)
	assert.Equal(t, KindCompliance, cs[0].Kind)
	assert.Equal(t, "GDPR", cs[0].Params.Token)
	assert.Equal(t, "OAuth2", cs[1].Params.Token)
}

// TestParseExplicitRequirements tests that enumerated list items become
// explicit requirements unless a specialized recognizer already claimed them
func TestParseExplicitRequirements(t *testing.T) {
	text := `Build a login endpoint.
- validate the session token on every request
- return JSON error bodies
- 90% coverage
1. log every failed attempt`

	cs := Parse(text)
	require.Len(t, cs, 4)

	assert.Equal(t, KindExplicit, cs[0].Kind)
	assert.Equal(t, "validate the session token on every request", cs[0].RawText)
	assert.True(t, cs[0].Required)

	assert.Equal(t, KindExplicit, cs[1].Kind)
	assert.Equal(t, "return JSON error bodies", cs[1].RawText)

	// the coverage bullet parses as a coverage threshold, not a duplicate
	// explicit requirement
	assert.Equal(t, KindCoverage, cs[2].Kind)
	assert.Equal(t, float64(90), cs[2].Params.Threshold)

	assert.Equal(t, KindExplicit, cs[3].Kind)
	assert.Equal(t, "log every failed attempt", cs[3].RawText)
}

func TestParseShortListItemsIgnored(t *testing.T) {
	cs := Parse("- ok\n- no\n1. x")
	assert.Empty(t, cs)
}

func TestParseHedgedLinesOptional(t *testing.T) {
	text := `- add structured logging
- dark mode would be nice to have
- coverage above 80% (optional)`

	cs := Parse(text)
	require.Len(t, cs, 3)
	assert.True(t, cs[0].Required)
	assert.False(t, cs[1].Required, "hedged list item should be optional")
	assert.Equal(t, KindCoverage, cs[2].Kind)
	assert.False(t, cs[2].Required, "hedged coverage line should be optional")
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("   \n\t"))
}

func TestParseDeduplicates(t *testing.T) {
	cs := Parse("needs 90% coverage. Really: 90% coverage.")
	require.Len(t, cs, 1)
	assert.Equal(t, KindCoverage, cs[0].Kind)
}

// TestParseIdempotent verifies identical text yields structurally equal sets
func TestParseIdempotent(t *testing.T) {
	text := `Implement a FIDO2 compliant auth service in Go using Fiber framework.
- rotate keys every 24 hours
- coverage at least 85%
- docs for every exported symbol`

	first := Parse(text)
	second := Parse(text)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

// TestParseOrderIsTextOrder verifies constraints come back ordered by where
// they first appear in the text, not by recognizer
func TestParseOrderIsTextOrder(t *testing.T) {
	cs := Parse("Needs GDPR compliance, written in Python, with 95% coverage")
	require.Len(t, cs, 3)
	assert.Equal(t, KindCompliance, cs[0].Kind)
	assert.Equal(t, KindLanguage, cs[1].Kind)
	assert.Equal(t, KindCoverage, cs[2].Kind)
}

func TestFormat(t *testing.T) {
	cs := Parse("in Go with 90% coverage")
	out := Format(cs)
	assert.Contains(t, out, "Constraints:")
	assert.Contains(t, out, "1. language-requirement: Go")
	assert.Contains(t, out, "2. coverage-threshold: test coverage >= 90%")

	assert.Empty(t, Format(nil))
}

func TestConstraintString(t *testing.T) {
	c := Constraint{
		Kind:     KindCoverage,
		RawText:  "coverage > 90%",
		Params:   Params{Threshold: 90, Op: OpGT},
		Required: true,
	}
	assert.Equal(t, "coverage-threshold: test coverage > 90%", c.String())

	c.Required = false
	assert.Contains(t, c.String(), "(optional)")
}
