package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// FileServer serves files below root from the route wildcard. Directories
// resolve to their index.html; listings are never produced.
type FileServer struct {
	root      string
	indexFile string
	hidden    []string
}

func NewFileServer(root string) *FileServer {
	return &FileServer{root: root, indexFile: "index.html"}
}

// Hide answers 404 for top-level directories that another route serves.
func (h *FileServer) Hide(dirs ...string) *FileServer {
	h.hidden = append(h.hidden, dirs...)
	return h
}

func (h *FileServer) isHidden(rel string) bool {
	top, _, _ := strings.Cut(strings.TrimPrefix(rel, "/"), "/")
	for _, d := range h.hidden {
		if strings.EqualFold(top, d) {
			return true
		}
	}
	return false
}

func (h *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if site := chi.URLParam(r, "site"); site != "" {
		rel = site + "/" + rel
	}
	rel = path.Clean("/" + rel)
	if strings.Contains(rel, "\x00") || h.isHidden(rel) {
		http.NotFound(w, r)
		return
	}

	filePath := filepath.Join(h.root, filepath.FromSlash(rel))
	info, err := os.Stat(filePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		filePath = filepath.Join(filePath, h.indexFile)
		if info, err = os.Stat(filePath); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
	}

	f, err := os.Open(filePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
