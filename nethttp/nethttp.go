// Package nethttp provides middleware for tracing net/http handlers.
package nethttp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/tracelens/trace-logger-go/tracelogger"
)

// Middleware returns a net/http middleware that captures each inbound
// request through the provided trace logger. Each request produces exactly
// one record, including when the handler panics; the panic is re-raised
// unchanged after the capture closes.
func Middleware(logger *tracelogger.TraceLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil || !logger.Enabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reqBody []byte
			if r.Body != nil {
				reqBody, _ = io.ReadAll(r.Body)
				_ = r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(reqBody))
			}

			reqHeaders := tracelogger.CanonicalHeaders(r.Header)

			ctx, capture := logger.CaptureRequest(r.Context(), tracelogger.Request{
				Direction:     tracelogger.DirectionInbound,
				Route:         routePattern(r),
				Method:        strings.ToUpper(r.Method),
				CallerService: reqHeaders["x-caller-service"],
				CallerUserID:  reqHeaders["x-user-id"],
				CallerIP:      tracelogger.ClientIP(reqHeaders, r.RemoteAddr),
				Payload:       tracelogger.ParseJSONBody(reqBody),
				Metadata:      requestMetadata(r),
				TraceID:       reqHeaders["x-trace-id"],
			})
			r = r.WithContext(ctx)
			w.Header().Set(tracelogger.TraceIDHeader, capture.TraceID())

			cw := newResponseCapture(w)
			var recovered any

			func() {
				defer func() {
					if rec := recover(); rec != nil {
						recovered = rec
						cw.ensureStatus(http.StatusInternalServerError)
					}
				}()
				next.ServeHTTP(cw, r)
			}()

			status := cw.statusCode()
			resHeaders := tracelogger.CanonicalHeaders(cw.Header())
			raw := cw.body.Bytes()

			switch {
			case recovered != nil:
				capture.SetPanic(recovered)
				capture.SetResponse(status, map[string]string{"error": fmt.Sprint(recovered)})
			case len(raw) == 0 && status >= 500:
				capture.SetResponse(status, map[string]string{"error": http.StatusText(status)})
			default:
				capture.SetResponse(status, tracelogger.DecodeResponseBody(raw, resHeaders))
			}

			capture.Finish(ctx)

			if recovered != nil {
				panic(recovered)
			}
		})
	}
}

// routePattern prefers the matched ServeMux pattern over the raw path so
// parameterized routes aggregate under one name.
func routePattern(r *http.Request) string {
	if r.Pattern == "" {
		return r.URL.Path
	}
	pattern := r.Pattern
	if idx := strings.IndexByte(pattern, '/'); idx > 0 {
		pattern = pattern[idx:]
	}
	return pattern
}

func requestMetadata(r *http.Request) map[string]any {
	meta := make(map[string]any, 2)
	if query := r.URL.Query(); len(query) > 0 {
		params := make(map[string]string, len(query))
		for key, values := range query {
			params[key] = strings.Join(values, ",")
		}
		meta["query_params"] = params
	}
	if ua := r.UserAgent(); ua != "" {
		meta["user_agent"] = ua
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newResponseCapture(w http.ResponseWriter) *responseCapture {
	return &responseCapture{ResponseWriter: w}
}

func (rw *responseCapture) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseCapture) Write(b []byte) (int, error) {
	if len(b) > 0 {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseCapture) ensureStatus(code int) {
	if rw.status == 0 || rw.status < code {
		rw.status = code
	}
}

func (rw *responseCapture) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseCapture) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseCapture) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

func (rw *responseCapture) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := rw.ResponseWriter.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}

var (
	_ http.Flusher  = (*responseCapture)(nil)
	_ http.Hijacker = (*responseCapture)(nil)
	_ http.Pusher   = (*responseCapture)(nil)
)
