package publish

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackName replaces names that sanitize to nothing.
const FallbackName = "site"

// Sanitize turns a display name into a folder name: diacritics stripped,
// lowercased, whitespace runs joined with "-", and only [a-z0-9-.] kept.
func Sanitize(name string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), name)
	if err != nil {
		stripped = name
	}
	joined := strings.Join(strings.Fields(strings.ToLower(stripped)), "-")

	var b strings.Builder
	for _, r := range joined {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	if out := strings.Trim(b.String(), "-."); out != "" {
		return out
	}
	return FallbackName
}
