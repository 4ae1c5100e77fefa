package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry/sitebuilder-go/internal/model"
)

type mockSessionRepo struct {
	findActiveFunc func(ctx context.Context, tokenHash string) (*model.WebSession, error)
}

func (m *mockSessionRepo) FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.WebSession, error) {
	if m.findActiveFunc != nil {
		return m.findActiveFunc(ctx, tokenHash)
	}
	return nil, nil
}

type mockUserRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func TestUserSessionMiddleware(t *testing.T) {
	const secret = "session-secret"
	const rawToken = "raw-session-token"

	sessions := &mockSessionRepo{
		findActiveFunc: func(_ context.Context, tokenHash string) (*model.WebSession, error) {
			if tokenHash == HashSessionToken(rawToken, secret) {
				return &model.WebSession{ID: "s1", UserID: "u1"}, nil
			}
			return nil, nil
		},
	}
	users := &mockUserRepo{
		findByIDFunc: func(_ context.Context, id string) (*model.User, error) {
			if id == "u1" {
				return &model.User{ID: "u1", Username: "maria"}, nil
			}
			return nil, nil
		},
	}
	mw := NewUserSessionMiddleware(sessions, users, secret)

	var seen *model.User
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid cookie", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: rawToken})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "maria", seen.Username)
	})

	t.Run("missing cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown or expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Session expired")
	})

	t.Run("database failure", func(t *testing.T) {
		broken := NewUserSessionMiddleware(&mockSessionRepo{
			findActiveFunc: func(context.Context, string) (*model.WebSession, error) {
				return nil, errors.New("connection reset")
			},
		}, users, secret)
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: rawToken})
		rec := httptest.NewRecorder()
		broken.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", true)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 7*24*3600, cookies[0].MaxAge)

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestWebhookAuth(t *testing.T) {
	auth := NewWebhookAuth("webhook-secret")

	var seen *WebhookClaims
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetWebhookClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook/recharge", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("signed token passes claims through", func(t *testing.T) {
		token, err := auth.Sign(WebhookClaims{
			UserID:           "u1",
			AmountUSD:        decimal.RequireFromString("12.5"),
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		})
		require.NoError(t, err)

		rec := call("Bearer " + token)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "u1", seen.UserID)
		assert.True(t, seen.AmountUSD.Equal(decimal.RequireFromString("12.5")))
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call("").Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewWebhookAuth("other-secret").Sign(WebhookClaims{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, call("Bearer "+token).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := auth.Sign(WebhookClaims{
			UserID:           "u1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, call("Bearer "+token).Code)
	})

	t.Run("other signing methods are refused", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, WebhookClaims{UserID: "u1"}).SignedString([]byte("webhook-secret"))
		require.NoError(t, err)
		_, err = auth.Parse(token)
		assert.Error(t, err)
	})

	t.Run("no secret configured", func(t *testing.T) {
		disabled := NewWebhookAuth("")
		_, err := disabled.Sign(WebhookClaims{})
		assert.Error(t, err)

		req := httptest.NewRequest(http.MethodPost, "/webhook/recharge", nil)
		req.Header.Set("Authorization", "Bearer anything")
		rec := httptest.NewRecorder()
		disabled.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
