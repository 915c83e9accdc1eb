package util

import (
	"errors"
	"strings"
)

// ErrNoJSONObject is returned when no complete JSON object is found.
var ErrNoJSONObject = errors.New("no JSON object found")

// ExtractJSONObject returns the first complete JSON object embedded in s.
// Markdown code fences are stripped first; brace matching tracks string
// literals and escapes so braces inside strings do not end the scan.
func ExtractJSONObject(s string) (string, error) {
	s = StripCodeFences(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", errors.New("unbalanced JSON object")
}

// StripCodeFences removes a surrounding markdown code fence (``` or
// ```json) if present, returning the inner text unchanged otherwise.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		// Drop a language marker like "json" on the fence line.
		first := strings.TrimSpace(trimmed[:nl])
		if first == "" || isLanguageMarker(first) {
			trimmed = trimmed[nl+1:]
		}
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func isLanguageMarker(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
