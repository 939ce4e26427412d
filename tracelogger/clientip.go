package tracelogger

import (
	"net"
	"strings"
)

// Headers checked for the originating client IP, most trustworthy first.
var clientIPHeaders = []string{
	"cf-connecting-ip",
	"true-client-ip",
	"x-forwarded-for",
	"x-real-ip",
	"fastly-client-ip",
}

// ClientIP resolves the caller IP from canonical (lowercase-keyed) request
// headers, falling back to the peer address when no forwarding header
// carries a valid IP.
func ClientIP(headers map[string]string, remoteAddr string) string {
	for _, name := range clientIPHeaders {
		if value, ok := headers[name]; ok {
			if ip := firstValidIP(value); ip != "" {
				return ip
			}
		}
	}
	if forwarded, ok := headers["forwarded"]; ok {
		if ip := forwardedFor(forwarded); ip != "" {
			return ip
		}
	}

	peer := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		peer = host
	}
	if validIP(peer) {
		return normalizeIP(peer)
	}
	return ""
}

func firstValidIP(list string) string {
	for _, part := range strings.Split(list, ",") {
		candidate := strings.Trim(strings.TrimSpace(part), "\"")
		if validIP(candidate) {
			return normalizeIP(candidate)
		}
	}
	return ""
}

// forwardedFor extracts the first for= element of an RFC 7239 Forwarded
// header.
func forwardedFor(value string) string {
	for _, segment := range strings.Split(value, ";") {
		for _, item := range strings.Split(segment, ",") {
			if !strings.Contains(strings.ToLower(item), "for=") {
				continue
			}
			parts := strings.SplitN(item, "=", 2)
			if len(parts) != 2 {
				continue
			}
			candidate := strings.Trim(strings.TrimSpace(parts[1]), "\"")
			if validIP(candidate) {
				return normalizeIP(candidate)
			}
		}
	}
	return ""
}

func validIP(value string) bool {
	if value == "" {
		return false
	}
	return net.ParseIP(normalizeIP(value)) != nil
}

func normalizeIP(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	return strings.TrimSuffix(value, "]")
}
