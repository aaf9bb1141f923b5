// Package strutil provides small string-splitting helpers shared across
// manifest parsing, selector parsing, and CLI flag handling.
package strutil

import "strings"

// SplitCSV splits a comma-separated string, trimming whitespace around each
// element and dropping empty elements.
func SplitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SplitFields splits a comma-or-whitespace delimited string the way group
// expressions and project argument lists are written on the command line.
func SplitFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
