package constraint

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Pre-compiled patterns. Recognizers are anchored to phrasing observed in
// real task descriptions; anything they miss falls through to the explicit
// list scan or degrades to a custom constraint.
var (
	// "coverage > 90%", "test coverage at least 85%"
	coverageOpRe = regexp.MustCompile(`(?i)(?:test\s+coverage|coverage)\s*(>=|>|<|above|at\s+least|below)\s*(\d+(?:\.\d+)?)%`)
	// ">90% coverage", "at least 85% test coverage"
	coveragePrefixRe = regexp.MustCompile(`(?i)(>=|>|<|above|at\s+least|below)\s*(\d+(?:\.\d+)?)%\s*(?:test\s+)?coverage`)
	// "90% coverage" with no comparison; defaults to >=
	coverageBareRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)%\s*(?:test\s+)?coverage`)
	// doubled percent signs ("90%%") are malformed and must degrade, not
	// parse as the valid-looking prefix
	coverageMalformedRe = regexp.MustCompile(`(?i)(?:(?:>=|>|<|above|at\s+least|below)\s*)?\d+(?:\.\d+)?%%+\s*(?:test\s+)?coverage|(?:test\s+coverage|coverage)\s*(?:>=|>|<|above|at\s+least|below)\s*\d+(?:\.\d+)?%%+`)

	languageRe       = regexp.MustCompile(`(?i)\b(?:use|using|in|with)\s+((?:TypeScript|JavaScript|Python|Java|Go|Rust)\b|C\+\+)`)
	languageStrictRe = regexp.MustCompile(`(?i)\b(TypeScript|JavaScript|Python|Java|Go|Rust)\s+strict\s+mode\b`)
	frameworkRe      = regexp.MustCompile(`\b(?i:use|using)\s+([A-Z][A-Za-z0-9]+(?:\s+[A-Z][A-Za-z0-9]+)?)\s+(?i:SDK|framework|library)\b`)
	complianceRe     = regexp.MustCompile(`(?i)\b(FIDO2|OAuth2|GDPR|HIPAA|SOC2)\s+(?:compliance|compliant)\b`)

	bulletLineRe   = regexp.MustCompile(`(?m)^[ \t]*[-*•][ \t]+(.+?)[ \t]*$`)
	numberedLineRe = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+(.+?)[ \t]*$`)
)

// hedgePhrases mark a line's requirements as optional rather than required
var hedgePhrases = []string{"nice to have", "optional", "if possible", "ideally"}

// Recognizer precedence, used only to break ties between candidates that
// start at the same text offset.
const (
	rankCoverage = iota
	rankLanguage
	rankFramework
	rankCompliance
	rankDegraded
	rankExplicit
)

var canonicalLanguages = map[string]string{
	"typescript": "TypeScript",
	"javascript": "JavaScript",
	"python":     "Python",
	"java":       "Java",
	"go":         "Go",
	"rust":       "Rust",
	"c++":        "C++",
}

var canonicalCompliance = map[string]string{
	"fido2":  "FIDO2",
	"oauth2": "OAuth2",
	"gdpr":   "GDPR",
	"hipaa":  "HIPAA",
	"soc2":   "SOC2",
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

func overlapsAny(s span, spans []span) bool {
	for _, o := range spans {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}

type candidate struct {
	start int
	rank  int
	c     Constraint
}

// Parse extracts constraints from requirement text. It never fails:
// unparseable numeric requirements degrade to custom constraints and
// everything else is simply not matched. The result is ordered by first
// match position and deduplicated by constraint identity, so identical
// input always yields an identical constraint set.
func Parse(text string) []Constraint {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	cands, claimed := scanCoverage(text)

	for _, re := range []*regexp.Regexp{languageRe, languageStrictRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			tok := canonicalLanguages[strings.ToLower(text[m[2]:m[3]])]
			if tok == "" {
				continue
			}
			claimed = append(claimed, span{m[0], m[1]})
			cands = append(cands, candidate{m[0], rankLanguage, Constraint{
				Kind:     KindLanguage,
				RawText:  text[m[0]:m[1]],
				Params:   Params{Token: tok},
				Required: true,
			}})
		}
	}

	for _, m := range frameworkRe.FindAllStringSubmatchIndex(text, -1) {
		claimed = append(claimed, span{m[0], m[1]})
		cands = append(cands, candidate{m[0], rankFramework, Constraint{
			Kind:     KindFramework,
			RawText:  text[m[0]:m[1]],
			Params:   Params{Token: text[m[2]:m[3]]},
			Required: true,
		}})
	}

	for _, m := range complianceRe.FindAllStringSubmatchIndex(text, -1) {
		tok := canonicalCompliance[strings.ToLower(text[m[2]:m[3]])]
		claimed = append(claimed, span{m[0], m[1]})
		cands = append(cands, candidate{m[0], rankCompliance, Constraint{
			Kind:     KindCompliance,
			RawText:  text[m[0]:m[1]],
			Params:   Params{Token: tok},
			Required: true,
		}})
	}

	// Enumerated list items the user wrote out become explicit requirements,
	// unless the line already produced a specialized constraint above.
	for _, re := range []*regexp.Regexp{bulletLineRe, numberedLineRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			content := strings.TrimSpace(text[m[2]:m[3]])
			if len(content) <= 5 {
				continue
			}
			if overlapsAny(span{m[2], m[3]}, claimed) {
				continue
			}
			cands = append(cands, candidate{m[0], rankExplicit, Constraint{
				Kind:     KindExplicit,
				RawText:  content,
				Required: true,
			}})
		}
	}

	// Anything the user explicitly lists is required unless the line hedges
	// it with optionality wording.
	for i := range cands {
		if lineIsHedged(text, cands[i].start) {
			cands[i].c.Required = false
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].start != cands[j].start {
			return cands[i].start < cands[j].start
		}
		return cands[i].rank < cands[j].rank
	})

	seen := make(map[string]bool, len(cands))
	out := make([]Constraint, 0, len(cands))
	for _, cand := range cands {
		key := cand.c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cand.c)
	}
	return out
}

// scanCoverage collects coverage-threshold candidates. Malformed matches are
// claimed first so their valid-looking substrings cannot also match, then the
// three well-formed patterns run in precedence order with overlap suppression
// between them.
func scanCoverage(text string) ([]candidate, []span) {
	var cands []candidate
	var claimed []span

	for _, m := range coverageMalformedRe.FindAllStringIndex(text, -1) {
		claimed = append(claimed, span{m[0], m[1]})
		cands = append(cands, candidate{m[0], rankDegraded, Constraint{
			Kind:     KindCustom,
			RawText:  text[m[0]:m[1]],
			Required: true,
		}})
	}

	patterns := []struct {
		re     *regexp.Regexp
		opIdx  int // submatch index of the comparison, 0 when absent
		valIdx int
	}{
		{coverageOpRe, 1, 2},
		{coveragePrefixRe, 1, 2},
		{coverageBareRe, 0, 1},
	}

	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			s := span{m[0], m[1]}
			if overlapsAny(s, claimed) {
				continue
			}
			claimed = append(claimed, s)
			raw := text[m[0]:m[1]]

			op := OpGTE
			if p.opIdx > 0 {
				op = normalizeOp(text[m[2*p.opIdx] : m[2*p.opIdx+1]])
			}
			v, err := strconv.ParseFloat(text[m[2*p.valIdx]:m[2*p.valIdx+1]], 64)
			if err != nil || v < 0 || v > 100 {
				// Degrade rather than drop: the requirement stays visible
				// to the reviewer as raw text.
				cands = append(cands, candidate{m[0], rankDegraded, Constraint{
					Kind:     KindCustom,
					RawText:  raw,
					Required: true,
				}})
				continue
			}
			cands = append(cands, candidate{m[0], rankCoverage, Constraint{
				Kind:     KindCoverage,
				RawText:  raw,
				Params:   Params{Threshold: v, Op: op},
				Required: true,
			}})
		}
	}
	return cands, claimed
}

func normalizeOp(s string) Op {
	switch strings.Join(strings.Fields(strings.ToLower(s)), " ") {
	case ">", "above":
		return OpGT
	case "<", "below":
		return OpLT
	default:
		// ">=", "at least", and anything unrecognized
		return OpGTE
	}
}

func lineIsHedged(text string, offset int) bool {
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += offset
	}
	line := strings.ToLower(text[start:end])
	for _, phrase := range hedgePhrases {
		if strings.Contains(line, phrase) {
			return true
		}
	}
	return false
}
