package middleware

import (
	"net/http"
	"strings"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	"github.com/strawberry/sitebuilder-go/internal/config"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/httputil"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware checks the double-submit cookie on state-changing browser
// requests. Paths under an exempt prefix authenticate some other way.
type CSRFMiddleware struct {
	isProduction bool
	exempt       []string
}

func NewCSRFMiddleware(isProduction bool, exemptPrefixes ...string) *CSRFMiddleware {
	return &CSRFMiddleware{isProduction: isProduction, exempt: exemptPrefixes}
}

func (m *CSRFMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range m.exempt {
			if strings.HasPrefix(r.URL.Path, p) {
				next.ServeHTTP(w, r)
				return
			}
		}

		cookie, err := r.Cookie(CSRFCookieName)
		if err != nil || cookie.Value == "" {
			token, err := util.GenerateToken()
			if err != nil {
				httputil.WriteError(w, apperrors.Internal("Failed to generate security token"))
				return
			}
			m.SetCookie(w, token)
			cookie = &http.Cookie{Value: token}
		}

		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(CSRFHeaderName)
		if headerToken == "" || !util.ConstantTimeEqual(cookie.Value, headerToken) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventCSRFFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			httputil.WriteError(w, apperrors.Forbidden("Invalid CSRF token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetCookie also runs after login so the token rotates with the session.
func (m *CSRFMiddleware) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(config.WebSessionTTL.Seconds()),
		HttpOnly: false,
		Secure:   m.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}
