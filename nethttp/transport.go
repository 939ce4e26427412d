package nethttp

import (
	"bytes"
	"io"
	"net/http"

	"github.com/tracelens/trace-logger-go/tracelogger"
)

// Transport is an http.RoundTripper that captures outbound requests. The
// trace ID from the request context is propagated via the X-Trace-Id
// header. Request and response bodies are buffered in memory to be
// recorded, so it is not suited to streaming transfers.
type Transport struct {
	// Base performs the actual request. http.DefaultTransport when nil.
	Base http.RoundTripper

	Logger *tracelogger.TraceLogger
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.Logger
	if logger == nil || !logger.Enabled() {
		return t.base().RoundTrip(req)
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}

	ctx, capture := logger.CaptureRequest(req.Context(), tracelogger.Request{
		Direction: tracelogger.DirectionOutbound,
		Route:     tracelogger.RoutePath(req.URL.String()),
		Method:    req.Method,
		Payload:   tracelogger.ParseJSONBody(reqBody),
	})

	out := req.Clone(ctx)
	if reqBody != nil {
		out.Body = io.NopCloser(bytes.NewReader(reqBody))
	}
	out.Header.Set(tracelogger.TraceIDHeader, capture.TraceID())

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		capture.SetError(err)
		capture.Finish(ctx)
		return nil, err
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		capture.SetError(readErr)
		capture.SetResponse(resp.StatusCode, nil)
		capture.Finish(ctx)
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	capture.SetResponse(resp.StatusCode, tracelogger.DecodeResponseBody(respBody, tracelogger.CanonicalHeaders(resp.Header)))
	capture.Finish(ctx)
	return resp, nil
}
