package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRFMiddleware(t *testing.T) {
	handler := NewCSRFMiddleware(false, "/webhook/").Handler(okHandler())

	t.Run("safe request issues a cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), CSRFCookieName+"=")
	})

	t.Run("matching header passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat/new", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
		req.Header.Set(CSRFHeaderName, "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("mismatch is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat/new", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
		req.Header.Set(CSRFHeaderName, "xyz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("exempt prefix skips the check", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/recharge", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLoginRateLimiter(t *testing.T) {
	limiter := NewLoginRateLimiter()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	handler := limiter.Handler(okHandler())

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, call("203.0.113.7").Code)
	}
	rec := call("203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("203.0.113.8").Code, "other clients are unaffected")

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, call("203.0.113.7").Code)
}

func TestBodyLimitMiddleware(t *testing.T) {
	handler := NewBodyLimitMiddleware(8).Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := NewSecurityHeadersMiddleware(true, "/static/websites/").Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/websites/bakery/index.html", nil))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}
