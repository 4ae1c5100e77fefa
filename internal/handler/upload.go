package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/config"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

const uploadSuffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

var allowedImageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// SiteFolders resolves a site the user owns to its folder on disk;
// *publish.Publisher implements it.
type SiteFolders interface {
	SiteFolder(ctx context.Context, userID, name string) (string, bool, error)
}

// Uploader stores one user image, inside an owned site folder when the form
// names one and in the temporary media folder otherwise.
type Uploader struct {
	staticDir string
	baseURL   string
	sites     SiteFolders
	now       func() time.Time
}

func NewUploader(staticDir, baseURL string, sites SiteFolders) *Uploader {
	return &Uploader{
		staticDir: staticDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
		sites:     sites,
		now:       time.Now,
	}
}

func (u *Uploader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, config.UploadMaxBytes)
	if err := r.ParseMultipartForm(config.UploadMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperrors.TooLarge("Image too large"))
			return
		}
		writeError(w, apperrors.ValidationError("Invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	header := firstFile(r.MultipartForm, "image", "images[]")
	if header == nil {
		writeError(w, apperrors.MissingRequired("image"))
		return
	}
	if header.Filename == "" {
		writeError(w, apperrors.InvalidInput("image", "empty filename"))
		return
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		writeError(w, apperrors.InvalidInput("image", "only images are allowed"))
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExts[ext] {
		writeError(w, apperrors.InvalidInput("image", "unsupported file type"))
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(w, apperrors.ValidationError("Unreadable image"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperrors.ValidationError("Unreadable image"))
		return
	}
	if !looksLikeImage(data, ext) {
		writeError(w, apperrors.InvalidInput("image", "file content does not match its type"))
		return
	}

	name := u.now().UTC().Format("20060102150405") + "-" + util.RandomString(6, uploadSuffixChars) + ext
	dir, urlPath := u.destination(r, user.ID)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("failed to create upload dir")
		writeError(w, apperrors.Internal("Failed to save image"))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("failed to save upload")
		writeError(w, apperrors.Internal("Failed to save image"))
		return
	}

	url := urlPath + "/" + name
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"url":        url,
		"public_url": u.baseURL + url,
	})
}

func (u *Uploader) destination(r *http.Request, userID string) (string, string) {
	requested := strings.TrimSpace(r.FormValue("site"))
	if requested == "" {
		requested = strings.TrimSpace(r.FormValue("website_name"))
	}
	if requested != "" {
		dir, ok, err := u.sites.SiteFolder(r.Context(), userID, requested)
		if err != nil {
			log.Warn().Err(err).Str("site", requested).Msg("site lookup failed, saving upload to temp media")
		}
		if ok {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				return dir, "/static/" + config.WebsitesDir + "/" + filepath.Base(dir)
			}
		}
	}
	return filepath.Join(u.staticDir, config.TempMediaDir), "/static/" + config.TempMediaDir
}

func firstFile(form *multipart.Form, fields ...string) *multipart.FileHeader {
	for _, f := range fields {
		if files := form.File[f]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func looksLikeImage(data []byte, ext string) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	switch ext {
	case ".jpg", ".jpeg":
		return bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF})
	case ".png":
		return bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n"))
	case ".gif":
		return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
	case ".webp":
		return len(head) >= 12 && string(head[:4]) == "RIFF" && string(head[8:12]) == "WEBP"
	case ".svg":
		return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
	}
	return false
}
