package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/publish"
)

type PublishHandler struct {
	publisher *publish.Publisher
	uploads   *Uploader
}

func NewPublishHandler(publisher *publish.Publisher, uploads *Uploader) *PublishHandler {
	return &PublishHandler{publisher: publisher, uploads: uploads}
}

// RegisterRoutes expects the user session middleware in front.
func (h *PublishHandler) RegisterRoutes(r chi.Router) {
	r.Post("/websites/publish", h.Publish)
	r.Delete("/websites", h.Delete)
	r.Post("/upload_image", h.uploads.ServeHTTP)
}

func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		HTML      string `json:"html_content"`
		Name      string `json:"website_name"`
		Republish bool   `json:"republish"`
		ChatHash  string `json:"hashchat"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	outcome, err := h.publisher.Publish(r.Context(), publish.Request{
		UserID:    user.ID,
		Name:      req.Name,
		HTML:      req.HTML,
		Republish: req.Republish,
		ChatHash:  req.ChatHash,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*publish.Outcome
	}{true, outcome})
}

func (h *PublishHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.publisher.Delete(r.Context(), user.ID, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
