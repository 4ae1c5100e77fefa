package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/model"
	"github.com/strawberry/sitebuilder-go/internal/service"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

type AuthHandler struct {
	users        *service.UserService
	csrf         *middleware.CSRFMiddleware
	isProduction bool
}

func NewAuthHandler(users *service.UserService, csrf *middleware.CSRFMiddleware, isProduction bool) *AuthHandler {
	return &AuthHandler{users: users, csrf: csrf, isProduction: isProduction}
}

// Routes are the unauthenticated account endpoints.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	return r
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventSignup, UserID: user.ID})
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    formatUser(user),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, apperrors.MissingRequired("username and password"))
		return
	}

	user, token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventLoginFailure,
				Details: map[string]interface{}{"username": req.Username},
			})
			writeError(w, apperrors.Unauthorized("Invalid username or password"))
			return
		}
		log.Error().Err(err).Msg("login failed")
		writeError(w, err)
		return
	}

	middleware.SetSessionCookie(w, token, h.isProduction)
	if csrfToken, err := util.GenerateToken(); err == nil {
		h.csrf.SetCookie(w, csrfToken)
	}
	audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginSuccess, UserID: user.ID})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    formatUser(user),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil && cookie.Value != "" {
		if err := h.users.Logout(r.Context(), cookie.Value); err != nil {
			log.Warn().Err(err).Msg("failed to delete web session")
		}
	}
	middleware.ClearSessionCookie(w)
	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me requires the user session middleware.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("User not logged in"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": formatUser(user)})
}

func formatUser(u *model.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"username":  u.Username,
		"balance":   u.BalanceUSD,
		"createdAt": u.CreatedAt,
	}
}
