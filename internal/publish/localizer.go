package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/config"
)

const maxAssetBytes = 50 << 20

// Result is a localized document.
type Result struct {
	HTML string
	// NewFiles counts files created in the destination; reused files are not counted.
	NewFiles int
	// NewImages is the part of NewFiles created for <img src> and SVG <image>.
	NewImages int
}

// Localizer copies every asset a document references into a site folder and
// points the references at the site's public prefix.
type Localizer struct {
	tempDir    string
	tempPrefix string
	client     *http.Client
}

// NewLocalizer serves staticDir at "/static"; temporary uploads live in its temp_media folder.
func NewLocalizer(staticDir string) *Localizer {
	return &Localizer{
		tempDir:    filepath.Join(staticDir, config.TempMediaDir),
		tempPrefix: "/static/" + config.TempMediaDir + "/",
		client:     &http.Client{Timeout: config.AssetDownloadTimeout},
	}
}

func (l *Localizer) WithHTTPClient(c *http.Client) *Localizer {
	l.client = c
	return l
}

// Localize rewrites src so that every asset lives in destDir under publicPrefix.
// References that cannot be fetched or decoded are left as they are.
func (l *Localizer) Localize(ctx context.Context, src, destDir, publicPrefix string) (Result, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return Result{}, fmt.Errorf("parse document: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create site folder: %w", err)
	}

	run := &localizeRun{
		Localizer: l,
		ctx:       ctx,
		destDir:   destDir,
		prefix:    strings.TrimSuffix(publicPrefix, "/"),
		done:      make(map[string]string),
	}
	rewriteReferences(doc, run.resolve)

	out, err := doc.render()
	if err != nil {
		return Result{}, fmt.Errorf("render document: %w", err)
	}
	return Result{HTML: out, NewFiles: run.newFiles, NewImages: run.newImages}, nil
}

type localizeRun struct {
	*Localizer
	ctx     context.Context
	destDir string
	prefix  string
	// done maps a raw reference to its file name, or "" when it failed.
	done      map[string]string
	newFiles  int
	newImages int
}

func (r *localizeRun) resolve(raw, namePrefix string, image bool) (string, bool) {
	ref := classify(raw, r.prefix, r.tempPrefix)
	if ref.kind == refIgnore || ref.kind == refLocal {
		return raw, false
	}

	name, seen := r.done[ref.raw]
	if !seen {
		var created bool
		var err error
		name, created, err = r.materialize(ref, namePrefix)
		if err != nil {
			log.Warn().Err(err).Str("ref", truncate(ref.raw, 120)).Msg("Asset left unlocalized")
			name = ""
		}
		r.done[ref.raw] = name
		if created {
			r.newFiles++
			if image {
				r.newImages++
			}
		}
	}
	if name == "" {
		return raw, false
	}
	return r.prefix + "/" + name, true
}

// materialize makes the asset exist in destDir and reports whether a new file was created.
func (r *localizeRun) materialize(ref reference, namePrefix string) (string, bool, error) {
	switch ref.kind {
	case refTemp:
		src := filepath.Join(r.tempDir, ref.name)
		if !fileExists(src) {
			if isHTTP(ref.raw) {
				return r.fetch(ref.raw, namedOrEmpty(ref.name), namePrefix)
			}
			return "", false, fmt.Errorf("temporary file %s not found", ref.name)
		}
		dst := filepath.Join(r.destDir, ref.name)
		if fileExists(dst) {
			return ref.name, false, nil
		}
		if err := moveFile(src, dst); err != nil {
			return "", false, err
		}
		return ref.name, true, nil

	case refData:
		data, mimeType, err := decodeDataURI(ref.raw)
		if err != nil {
			return "", false, err
		}
		name := randomName(namePrefix) + extensionFor(mimeType)
		if err := writeNew(filepath.Join(r.destDir, name), data); err != nil {
			return "", false, err
		}
		return name, true, nil

	case refRemote:
		return r.fetch(ref.raw, ref.name, namePrefix)
	}
	return "", false, fmt.Errorf("unsupported reference")
}

func (r *localizeRun) fetch(rawURL, name, namePrefix string) (string, bool, error) {
	if name == "" {
		name = randomName(namePrefix)
	}
	dst := filepath.Join(r.destDir, name)
	if fileExists(dst) {
		return name, false, nil
	}
	if err := r.download(r.ctx, rawURL, dst); err != nil {
		return "", false, err
	}
	return name, true, nil
}

func (l *Localizer) download(ctx context.Context, rawURL, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, config.AssetDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(tmp, io.LimitReader(resp.Body, maxAssetBytes))
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("download: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func namedOrEmpty(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return ""
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func writeNew(p string, data []byte) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
