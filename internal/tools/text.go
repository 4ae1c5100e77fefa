package tools

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var fenceReplacer = strings.NewReplacer("```html", "", "```json", "", "```", "", "\n", "")

// StripFences removes markdown code fences and newlines from rendered HTML.
func StripFences(s string) string {
	return fenceReplacer.Replace(s)
}

const fallbackQuery = "happy dog"

// simplifyQuery reduces a free-text search to two plain words, which keeps
// image search APIs from rejecting long or accented queries.
func simplifyQuery(q string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, q)
	if err != nil {
		stripped = q
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, stripped)

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if len([]rune(w)) >= 2 {
			words = append(words, w)
		}
	}
	switch len(words) {
	case 0:
		return fallbackQuery
	case 1:
		return words[0] + " photo"
	default:
		return words[0] + " " + words[1]
	}
}

func queryLanguage(q string) string {
	if strings.ContainsAny(strings.ToLower(q), "áéíóúñ") {
		return "es"
	}
	return "en"
}

const noHTMLFound = "Error: No HTML code found in the response"

// extractHTML returns the <html ...>...</html> span of a model completion.
func extractHTML(content string) string {
	start := strings.Index(content, "<html")
	end := strings.Index(content, "</html>")
	if start < 0 || end < 0 || end < start {
		return noHTMLFound
	}
	return content[start : end+len("</html>")]
}
