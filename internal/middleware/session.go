package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/config"
	"github.com/strawberry/sitebuilder-go/internal/httputil"
	"github.com/strawberry/sitebuilder-go/internal/model"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

const SessionCookie = "sb_session"

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

// WithUser is used by handler tests to fake a logged-in request.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

type SessionFinder interface {
	FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.WebSession, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type UserSessionMiddleware struct {
	sessions SessionFinder
	users    UserFinder
	secret   string
}

func NewUserSessionMiddleware(sessions SessionFinder, users UserFinder, secret string) *UserSessionMiddleware {
	return &UserSessionMiddleware{sessions: sessions, users: users, secret: secret}
}

func (m *UserSessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			httputil.WriteError(w, apperrors.Unauthorized("User not logged in"))
			return
		}

		session, err := m.sessions.FindActiveByTokenHash(r.Context(), HashSessionToken(cookie.Value, m.secret))
		if err != nil {
			log.Error().Err(err).Msg("user session middleware: database error")
			httputil.WriteError(w, apperrors.Database(err))
			return
		}
		if session == nil {
			httputil.WriteError(w, apperrors.Unauthorized("Session expired"))
			return
		}

		user, err := m.users.FindByID(r.Context(), session.UserID)
		if err != nil {
			log.Error().Err(err).Str("userId", session.UserID).Msg("user session middleware: database error")
			httputil.WriteError(w, apperrors.Database(err))
			return
		}
		if user == nil {
			httputil.WriteError(w, apperrors.Unauthorized("User not logged in"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func HashSessionToken(token, secret string) string {
	return util.HmacSHA256(secret, token)
}

func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(config.WebSessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
