package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/service"
)

type ChatHandler struct {
	chats *service.ChatService
}

func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// RegisterRoutes expects the user session middleware in front.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chats", h.NewChat)
	r.Delete("/chats", h.DeleteAll)
	r.Post("/chats/message", h.SendMessage)
	r.Get("/chats/latest", h.Latest)
	r.Get("/chats/{hash}/history", h.History)
	r.Delete("/chats/{hash}", h.Delete)
	r.Get("/history", h.UserHistory)
}

func (h *ChatHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	c, err := h.chats.NewChat(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"hashchat": c.Hash,
		"title":    c.Title,
		"history":  c.History,
	})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		Hash        string   `json:"hashchat"`
		Message     string   `json:"message"`
		Nickname    string   `json:"usernickname"`
		CurrentHTML string   `json:"current_html"`
		ImageURLs   []string `json:"url_images"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.chats.SendMessage(r.Context(), user, service.MessageRequest{
		Hash:        req.Hash,
		Text:        req.Message,
		Nickname:    req.Nickname,
		CurrentHTML: req.CurrentHTML,
		ImageURLs:   req.ImageURLs,
		Language:    userLanguage(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	known := 0
	if raw := r.URL.Query().Get("known"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperrors.InvalidInput("known", "must be a non-negative integer"))
			return
		}
		known = n
	}

	update, err := h.chats.History(r.Context(), user.ID, chi.URLParam(r, "hash"), known)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (h *ChatHandler) Latest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	c, err := h.chats.Latest(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if err := h.chats.Delete(r.Context(), user.ID, chi.URLParam(r, "hash")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChatHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	n, err := h.chats.DeleteAll(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

func (h *ChatHandler) UserHistory(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	history, err := h.chats.UserHistory(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
