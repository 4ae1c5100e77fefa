package publish

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/strawberry/sitebuilder-go/internal/util"
)

type refKind int

const (
	refIgnore refKind = iota
	refLocal
	refTemp
	refData
	refRemote
)

// reference is a classified asset reference found in a document.
type reference struct {
	raw  string
	kind refKind
	// name is the destination filename for temp and named remote assets.
	// It is empty when the name has to be generated.
	name string
}

// classify sorts a reference the same way for estimating and localizing.
// tempPrefix is the public URL of the temporary-upload area ("/static/temp_media/").
func classify(raw, sitePrefix, tempPrefix string) reference {
	raw = strings.TrimSpace(raw)
	ref := reference{raw: raw}
	if raw == "" {
		return ref
	}
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		ref.kind = refData
		return ref
	}

	remote := isHTTP(raw)
	p := raw
	if remote {
		u, err := url.Parse(raw)
		if err != nil {
			return ref
		}
		p = u.Path
	}

	if underPrefix(p, sitePrefix) {
		ref.kind = refLocal
		return ref
	}
	if underPrefix(p, tempPrefix) {
		if name := path.Base(p); validName(name) {
			ref.kind, ref.name = refTemp, name
			return ref
		}
		return ref
	}
	if remote {
		ref.kind = refRemote
		if name := path.Base(p); validName(name) && strings.Contains(name, ".") {
			ref.name = name
		}
		return ref
	}
	if !strings.HasPrefix(p, "/") {
		ref.kind = refLocal
	}
	return ref
}

func isHTTP(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// underPrefix accepts the prefix with or without its leading slash.
func underPrefix(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	bare := strings.TrimPrefix(prefix, "/")
	p = strings.TrimPrefix(p, "/")
	return p == bare || strings.HasPrefix(p, bare+"/")
}

func validName(name string) bool {
	return name != "" && name != "/" && !strings.HasPrefix(name, ".") && !strings.ContainsAny(name, `/\`)
}

func randomName(prefix string) string {
	return prefix + "-" + util.RandomString(8, util.LowerAlnum)
}

var preferredExt = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/x-icon":  ".ico",
	"image/avif":    ".avif",
	"audio/mpeg":    ".mp3",
	"audio/wav":     ".wav",
	"audio/ogg":     ".ogg",
	"video/mp4":     ".mp4",
	"video/webm":    ".webm",
}

func extensionFor(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if ext, ok := preferredExt[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// decodeDataURI returns the payload and declared MIME type of a data: URI.
func decodeDataURI(raw string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(raw, ",")
	if !ok {
		return nil, "", fmt.Errorf("data uri without payload")
	}
	header = header[len("data:"):]
	params := strings.Split(header, ";")
	mimeType := params[0]
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		text, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decode data uri: %w", err)
		}
		return []byte(text), mimeType, nil
	}

	payload = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return nil, "", fmt.Errorf("decode data uri: %w", err)
		}
	}
	return data, mimeType, nil
}
