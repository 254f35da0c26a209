// Package utils holds small helpers shared across symrefresh packages.
package utils

import "strings"

// ParseList splits a comma or newline separated string and returns the
// trimmed non-empty values in input order. Returns nil for blank input.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	var result []string
	for _, v := range fields {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Dedupe returns values with later duplicates removed, keeping first-seen order.
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
