package mediaurl

import (
	"net/url"
	"strings"
)

// PathPrefix is the relative prefix stored on Photo records.
const PathPrefix = "uploads/"

// RoutePrefix is where the HTTP layer serves the upload directory.
const RoutePrefix = "/" + PathPrefix

func Photo(filename string) string {
	return PathPrefix + filename
}

// ParseFilename extracts the stored filename from a photo URL. It accepts
// the relative form, a rooted path and an absolute URL.
func ParseFilename(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	path := u.Path
	if path == "" {
		path = raw
	}
	path = strings.TrimPrefix(path, "/")

	if !strings.HasPrefix(path, PathPrefix) {
		return "", false
	}

	filename := strings.TrimPrefix(path, PathPrefix)
	if filename == "" || strings.Contains(filename, "/") || strings.HasPrefix(filename, ".") {
		return "", false
	}

	return filename, true
}
