package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/text/language"

	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads the request body into dst. An oversized body maps to 413.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.TooLarge("Request body too large")
		}
		return apperrors.ValidationError("Invalid JSON body")
	}
	return nil
}

var (
	supportedLanguages = []language.Tag{language.English, language.Spanish, language.Chinese}
	languageMatcher    = language.NewMatcher(supportedLanguages)
	languageNames      = map[language.Tag]string{
		language.English: "English",
		language.Spanish: "Spanish",
		language.Chinese: "Chinese",
	}
)

// userLanguage picks the reply language from Accept-Language, English by default.
func userLanguage(r *http.Request) string {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, idx, _ := languageMatcher.Match(tags...)
	return languageNames[supportedLanguages[idx]]
}
