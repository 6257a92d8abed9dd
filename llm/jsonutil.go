package llm

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for locating JSON payloads in model responses.
var (
	// fencedObjectPattern matches a JSON object inside a markdown code fence.
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json|jsonc)?\\s*\\n?(\\{.*\\})\\s*```")
	// fencedArrayPattern matches a JSON array inside a markdown code fence.
	fencedArrayPattern = regexp.MustCompile("(?s)```(?:json|jsonc)?\\s*\\n?(\\[.*\\])\\s*```")
	// bareObjectPattern matches any JSON object (greedy fallback).
	bareObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// bareArrayPattern matches any JSON array (greedy fallback).
	bareArrayPattern = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON extracts a JSON object from a model response. Models wrap
// payloads in markdown fences and emit JavaScript-style comments and trailing
// commas; all three are tolerated. Returns "" when no object is found.
func ExtractJSON(content string) string {
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		return SanitizeJSON(m[1])
	}
	if m := bareObjectPattern.FindString(content); m != "" {
		return SanitizeJSON(m)
	}
	return ""
}

// ExtractJSONArray extracts a JSON array from a model response.
func ExtractJSONArray(content string) string {
	if m := fencedArrayPattern.FindStringSubmatch(content); len(m) > 1 {
		return SanitizeJSON(m[1])
	}
	if m := bareArrayPattern.FindString(content); m != "" {
		return SanitizeJSON(m)
	}
	return ""
}

// SanitizeJSON removes JavaScript-style line comments and trailing commas
// from a JSON payload. Comments inside string values are preserved.
func SanitizeJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")

	return trailingCommaPattern.ReplaceAllString(result, "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string
// values:
//
//	"path/to/file.js",          // note      → "path/to/file.js",
//	"url": "http://example.com" // note      → "url": "http://example.com"
//	"url": "http://example.com"              → unchanged
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
