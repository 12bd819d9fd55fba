package utils

import (
	"net/url"
	"strings"
)

// SafeRelativePath returns p when it is a same-site absolute path ("/x?y"),
// otherwise fallback. Scheme-relative ("//host") and backslash tricks are rejected.
func SafeRelativePath(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return fallback
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return p
}
