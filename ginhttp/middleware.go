// Package ginhttp provides middleware for tracing gin handlers.
package ginhttp

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tracelens/trace-logger-go/tracelogger"
)

// Middleware returns a gin middleware that captures each inbound request
// through the provided trace logger. The matched route template
// (c.FullPath) is recorded so parameterized routes aggregate under one
// name. Panics are recorded and re-raised for gin's own recovery layer.
func Middleware(logger *tracelogger.TraceLogger) gin.HandlerFunc {
	if logger == nil || !logger.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			_ = c.Request.Body.Close()
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		reqHeaders := tracelogger.CanonicalHeaders(c.Request.Header)

		ctx, capture := logger.CaptureRequest(c.Request.Context(), tracelogger.Request{
			Direction:     tracelogger.DirectionInbound,
			Route:         route,
			Method:        strings.ToUpper(c.Request.Method),
			CallerService: reqHeaders["x-caller-service"],
			CallerUserID:  reqHeaders["x-user-id"],
			CallerIP:      c.ClientIP(),
			Payload:       tracelogger.ParseJSONBody(reqBody),
			Metadata:      requestMetadata(c),
			TraceID:       reqHeaders["x-trace-id"],
		})
		c.Request = c.Request.WithContext(ctx)
		c.Header(tracelogger.TraceIDHeader, capture.TraceID())

		bw := &bodyWriter{ResponseWriter: c.Writer}
		c.Writer = bw

		var recovered any

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					recovered = rec
				}
			}()
			c.Next()
		}()

		status := c.Writer.Status()

		switch {
		case recovered != nil:
			capture.SetPanic(recovered)
			if status < http.StatusInternalServerError {
				status = http.StatusInternalServerError
			}
			capture.SetResponse(status, map[string]string{"error": fmt.Sprint(recovered)})
		default:
			if len(c.Errors) > 0 {
				capture.SetError(c.Errors.Last().Err)
			}
			resHeaders := tracelogger.CanonicalHeaders(c.Writer.Header())
			capture.SetResponse(status, tracelogger.DecodeResponseBody(bw.buf.Bytes(), resHeaders))
		}

		capture.Finish(ctx)

		if recovered != nil {
			panic(recovered)
		}
	}
}

func requestMetadata(c *gin.Context) map[string]any {
	meta := make(map[string]any, 2)
	if query := c.Request.URL.Query(); len(query) > 0 {
		params := make(map[string]string, len(query))
		for key, values := range query {
			params[key] = strings.Join(values, ",")
		}
		meta["query_params"] = params
	}
	if ua := c.Request.UserAgent(); ua != "" {
		meta["user_agent"] = ua
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

type bodyWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
