package domain

import (
	"net/url"
	"strings"
)

// NormalizeImageURL turns the image reference stored on a record into a URL
// that can be fetched. Absolute URLs are kept, protocol-relative ones get
// https, and relative paths are joined to the asset base. Backslashes are
// treated as path separators. A blank reference yields "".
func NormalizeImageURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = strings.ReplaceAll(raw, `\`, "/")

	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw
	}

	base = strings.TrimSpace(base)
	if base == "" {
		return "/" + strings.TrimLeft(raw, "/")
	}
	joined, err := url.JoinPath(base, strings.TrimLeft(raw, "/"))
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	return joined
}
