package tracelogger

import (
	"net/url"
	"strings"
)

// RoutePath reduces a URL or request URI to its path, dropping scheme,
// host and query. Used as the route for outbound captures where no route
// template exists.
func RoutePath(raw string) string {
	if raw == "" {
		return ""
	}

	path := raw
	if strings.Contains(raw, "://") || strings.HasPrefix(raw, "//") {
		if u, err := url.Parse(raw); err == nil {
			path = preferredPath(u)
		}
	} else if !strings.HasPrefix(raw, "/") {
		if u, err := url.Parse(raw); err == nil {
			if candidate := preferredPath(u); candidate != "" {
				path = candidate
			}
		}
	}

	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func preferredPath(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.EscapedPath() != "" {
		return u.EscapedPath()
	}
	return u.Path
}
