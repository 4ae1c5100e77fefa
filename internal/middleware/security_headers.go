package middleware

import (
	"net/http"
	"strings"
)

// appCSP covers the builder UI. Published sites are user content and only
// get the non-CSP headers.
const appCSP = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline' https:; " +
	"img-src 'self' data: blob: https:; " +
	"media-src 'self' data: blob: https:; " +
	"font-src 'self' data: https:; " +
	"connect-src 'self'; " +
	"frame-src 'self' blob:; " +
	"base-uri 'self'; " +
	"form-action 'self'"

type SecurityHeadersMiddleware struct {
	isProduction bool
	sitesPrefix  string
}

func NewSecurityHeadersMiddleware(isProduction bool, sitesPrefix string) *SecurityHeadersMiddleware {
	return &SecurityHeadersMiddleware{isProduction: isProduction, sitesPrefix: sitesPrefix}
}

func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if m.isProduction {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		if m.sitesPrefix == "" || !strings.HasPrefix(r.URL.Path, m.sitesPrefix) {
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Content-Security-Policy", appCSP)
		}

		next.ServeHTTP(w, r)
	})
}
