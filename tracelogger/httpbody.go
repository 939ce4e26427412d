package tracelogger

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// CanonicalHeaders flattens an http.Header into a lowercase-keyed map,
// joining repeated values with ", ".
func CanonicalHeaders(h http.Header) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return out
}

// ParseJSONBody interprets a request body: JSON when it parses, raw string
// otherwise. Empty bodies yield nil.
func ParseJSONBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}
	return string(raw)
}

// DecodeResponseBody turns a captured response body into a structured
// payload, honoring content-encoding and content-type from the canonical
// header map. Bodies that are neither JSON nor text are base64-wrapped.
func DecodeResponseBody(raw []byte, headers map[string]string) any {
	if len(raw) == 0 {
		return nil
	}

	decoded := decompressBody(raw, headers["content-encoding"])
	ctype := strings.ToLower(headers["content-type"])

	if strings.Contains(ctype, "application/json") {
		if parsed, ok := tryParseJSON(decoded); ok {
			return parsed
		}
		return string(decoded)
	}
	if strings.HasPrefix(ctype, "text/") || strings.Contains(ctype, "xml") || strings.Contains(ctype, "html") {
		return string(decoded)
	}

	if parsed, ok := tryParseJSON(decoded); ok {
		return parsed
	}
	if ctype == "" && utf8.Valid(decoded) {
		return string(decoded)
	}
	return map[string]string{"base64": base64.StdEncoding.EncodeToString(decoded)}
}

func decompressBody(raw []byte, encoding string) []byte {
	switch lower := strings.ToLower(encoding); {
	case strings.Contains(lower, "gzip"):
		if gr, err := gzip.NewReader(bytes.NewReader(raw)); err == nil {
			data, derr := io.ReadAll(gr)
			gr.Close()
			if derr == nil {
				return data
			}
		}
	case strings.Contains(lower, "deflate"):
		if fr := flate.NewReader(bytes.NewReader(raw)); fr != nil {
			data, err := io.ReadAll(fr)
			fr.Close()
			if err == nil {
				return data
			}
		}
	}
	return raw
}

func tryParseJSON(raw []byte) (any, bool) {
	var out any
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, true
	}
	return nil, false
}
