package util

import (
	"regexp"
	"strings"
)

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)
	base58Regex   = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

func IsValidUsername(s string) bool {
	return usernameRegex.MatchString(s)
}

// IsBase58Address is a plausibility check for Solana public keys, not a curve check.
func IsBase58Address(s string) bool {
	return base58Regex.MatchString(strings.TrimSpace(s))
}
