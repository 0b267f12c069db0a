package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Pre-compiled patterns; compiling per parse is an order of magnitude slower.
var (
	fenceWholeRe = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	fenceAnyRe   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	lineCommentRe   = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	jsonObjectRe = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	jsonArrayRe  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// maxJSONInput caps how much model output we will attempt to parse
const maxJSONInput = 10 * 1024 * 1024

// ParseResult is the outcome of parsing model output as JSON
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// ParseJSON parses model output as JSON with fallback strategies for the
// formatting quirks LLMs produce: markdown code fences, trailing commas,
// unquoted keys, comments, and prose wrapped around the payload.
//
// Strategy sequence:
//  1. Direct parse
//  2. Strip code fences and retry
//  3. Clean up common JSON defects and retry
//  4. Extract the JSON object/array from mixed content and retry
//
// context labels log lines and error messages.
func ParseJSON[T any](text, context string) ParseResult[T] {
	if len(text) > maxJSONInput {
		return parseFailure[T](fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxJSONInput), context)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseFailure[T]("empty input", context)
	}

	if data, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	} else {
		slog.Debug("direct JSON parse failed, trying cleanup strategies",
			"error", err.Error(),
			"preview", truncate(text, 100),
			"context", context)
	}

	unfenced := stripCodeFences(trimmed)
	if unfenced != trimmed {
		if data, err := tryParse[T](unfenced); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	cleaned := cleanupJSON(unfenced)
	if data, err := tryParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if data, err := tryParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	return parseFailure[T]("all JSON parsing strategies failed", context)
}

// ParseJSONOrDefault parses model output and falls back to a default on error
func ParseJSONOrDefault[T any](text, context string, fallback T) T {
	result := ParseJSON[T](text, context)
	if result.Success {
		return result.Data
	}
	slog.Debug("JSON parse failed, using fallback",
		"error", result.Error,
		"preview", truncate(text, 100),
		"context", context)
	return fallback
}

func tryParse[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(text), &out)
	return out, err
}

// stripCodeFences removes markdown fences around the payload. Whole-string
// fences are preferred; otherwise the first fenced block anywhere wins.
func stripCodeFences(text string) string {
	cleaned := fenceWholeRe.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = fenceAnyRe.ReplaceAllString(text, "$1")
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "`"), "`")
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes trailing commas, unquoted keys and comments. Single
// quotes are left alone: rewriting them breaks valid JSON containing
// apostrophes.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRe.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRe.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = lineCommentRe.ReplaceAllString(cleaned, "")
	cleaned = blockCommentRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls a JSON object or array out of surrounding prose. The
// first-character check keeps an array from being narrowed to its first
// element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '[':
			if m := jsonArrayRe.FindString(text); m != "" {
				return m
			}
		case '{':
			if m := jsonObjectRe.FindString(text); m != "" {
				return m
			}
		}
	}
	if m := jsonObjectRe.FindString(text); m != "" {
		return m
	}
	return jsonArrayRe.FindString(text)
}

func parseFailure[T any](message, context string) ParseResult[T] {
	if context != "" {
		message = context + ": " + message
	}
	var zero T
	return ParseResult[T]{Success: false, Data: zero, Error: message}
}

// truncate shortens s for log previews
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
