package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFKC form of s so that visually identical input
// typed on different keyboards compares equal.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// NormalizeEmail trims, NFKC-normalizes and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(Normalize(strings.TrimSpace(s)))
}
