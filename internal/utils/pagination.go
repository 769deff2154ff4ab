// Package utils holds small parsing helpers shared by the HTTP layer.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// AtoiBounded parses s like AtoiDefault and clamps the result to [lo, hi].
// A non-positive hi leaves the upper side open.
func AtoiBounded(s string, def, lo, hi int) int {
	n := AtoiDefault(s, def)
	if n < lo {
		return lo
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}

// ParseUint parses a positive decimal id such as a notification id taken
// from a path segment.
func ParseUint(s string) (uint, bool) {
	n, err := strconv.ParseUint(s, 10, 0)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
