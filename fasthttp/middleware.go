// Package fasthttp provides middleware for tracing github.com/valyala/fasthttp handlers.
package fasthttp

import (
	"context"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/tracelens/trace-logger-go/tracelogger"
)

// Middleware wraps a fasthttp handler so every request is captured through
// the provided trace logger. Panics are recorded and re-raised unchanged.
func Middleware(logger *tracelogger.TraceLogger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil || !logger.Enabled() {
		return next
	}

	return func(rctx *fasthttp.RequestCtx) {
		reqHeaders := canonicalHeaders(rctx.Request.Header.VisitAll)
		reqBody := append([]byte(nil), rctx.PostBody()...)

		ctx, capture := logger.CaptureRequest(context.Background(), tracelogger.Request{
			Direction:     tracelogger.DirectionInbound,
			Route:         string(rctx.Path()),
			Method:        strings.ToUpper(string(rctx.Method())),
			CallerService: reqHeaders["x-caller-service"],
			CallerUserID:  reqHeaders["x-user-id"],
			CallerIP:      tracelogger.ClientIP(reqHeaders, rctx.RemoteAddr().String()),
			Payload:       tracelogger.ParseJSONBody(reqBody),
			Metadata:      requestMetadata(rctx),
			TraceID:       reqHeaders["x-trace-id"],
		})

		var recovered any

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					recovered = rec
					rctx.Response.ResetBody()
					rctx.Response.SetStatusCode(fasthttp.StatusInternalServerError)
				}
			}()
			next(rctx)
		}()

		rctx.Response.Header.Set(tracelogger.TraceIDHeader, capture.TraceID())

		status := rctx.Response.StatusCode()
		resHeaders := canonicalHeaders(rctx.Response.Header.VisitAll)
		raw := append([]byte(nil), rctx.Response.Body()...)

		switch {
		case recovered != nil:
			capture.SetPanic(recovered)
			capture.SetResponse(status, map[string]string{"error": stringify(recovered)})
		case len(raw) == 0 && status >= 500:
			msg := fasthttp.StatusMessage(status)
			if msg == "" {
				msg = "Internal Server Error"
			}
			capture.SetResponse(status, map[string]string{"error": msg})
		default:
			capture.SetResponse(status, tracelogger.DecodeResponseBody(raw, resHeaders))
		}

		capture.Finish(ctx)

		if recovered != nil {
			panic(recovered)
		}
	}
}

func requestMetadata(rctx *fasthttp.RequestCtx) map[string]any {
	meta := make(map[string]any, 2)
	if args := rctx.QueryArgs(); args.Len() > 0 {
		params := make(map[string]string, args.Len())
		args.VisitAll(func(k, v []byte) {
			params[string(k)] = string(v)
		})
		meta["query_params"] = params
	}
	if ua := rctx.UserAgent(); len(ua) > 0 {
		meta["user_agent"] = string(ua)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func canonicalHeaders(visit func(func(key, value []byte))) map[string]string {
	headers := make(map[string]string)
	visit(func(k, v []byte) {
		key := strings.ToLower(string(k))
		val := string(v)
		if existing, ok := headers[key]; ok && existing != "" {
			headers[key] = existing + ", " + val
		} else {
			headers[key] = val
		}
	})
	return headers
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}
