package generation

import (
	"fmt"
	"strings"
)

// ExtractJSON pulls the first complete JSON object or array out of model
// output, tolerating markdown fences, prose around the payload, and trailing
// commas. String contents are scanned brace-aware so braces inside values do
// not confuse the match.
func ExtractJSON(response string) (string, error) {
	cleaned := stripFences(response)

	start := strings.IndexAny(cleaned, "{[")
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	open := cleaned[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return removeTrailingCommas(cleaned[start : i+1]), nil
			}
		}
	}

	return "", fmt.Errorf("unterminated JSON in response")
}

// stripFences removes a ```json ... ``` wrapper when present.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		if strings.ContainsAny(rest, "{[") {
			return strings.TrimSpace(rest)
		}
	}
	return trimmed
}

// removeTrailingCommas drops commas that directly precede a closing brace or
// bracket, the most common malformation in model JSON.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case c == ',' && !inString:
			if next := nextNonSpace(s, i+1); next == '}' || next == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func nextNonSpace(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}
