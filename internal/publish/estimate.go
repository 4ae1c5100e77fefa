package publish

import (
	"path/filepath"
	"strings"
)

// Estimate counts the image files Localize would create for src in destDir.
// It only reads the filesystem: destDir is never created.
func (l *Localizer) Estimate(src, destDir, publicPrefix string) int {
	doc, err := parseDocument(src)
	if err != nil {
		return 0
	}
	prefix := strings.TrimSuffix(publicPrefix, "/")
	seen := make(map[string]bool)

	rewriteImages(doc, func(raw, _ string, _ bool) (string, bool) {
		if key := l.newFileKey(classify(raw, prefix, l.tempPrefix), destDir); key != "" {
			seen[key] = true
		}
		return raw, false
	})
	return len(seen)
}

// newFileKey identifies the file a reference would create, or "" when it
// would create none. Generated names are unique per reference.
func (l *Localizer) newFileKey(ref reference, destDir string) string {
	switch ref.kind {
	case refData:
		return "ref:" + ref.raw
	case refTemp:
		if fileExists(filepath.Join(l.tempDir, ref.name)) {
			if fileExists(filepath.Join(destDir, ref.name)) {
				return ""
			}
			return "file:" + ref.name
		}
		if isHTTP(ref.raw) {
			return remoteKey(ref.raw, namedOrEmpty(ref.name), destDir)
		}
	case refRemote:
		return remoteKey(ref.raw, ref.name, destDir)
	}
	return ""
}

func remoteKey(raw, name, destDir string) string {
	if name == "" {
		return "ref:" + raw
	}
	if fileExists(filepath.Join(destDir, name)) {
		return ""
	}
	return "file:" + name
}
