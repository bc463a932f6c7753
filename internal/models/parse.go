package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseInt parses a raw remote value holding an integer.
// Accepts a bare JSON number or a JSON string, e.g. 45 or "45".
func ParseInt(raw []byte) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedValue, truncate(s, 32))
	}
	return v, nil
}

// ParsePercent parses a sensor or threshold value
func ParsePercent(raw []byte) (int, error) {
	v, err := ParseInt(raw)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
