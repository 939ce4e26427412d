package fasthttp_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	fasthttpmw "github.com/tracelens/trace-logger-go/fasthttp"
	"github.com/tracelens/trace-logger-go/tracelogger"
)

type recordingSender struct {
	logs      []tracelogger.Envelope
	errorLogs []tracelogger.Envelope
}

func (s *recordingSender) SendLog(_ context.Context, payload any) error {
	s.logs = append(s.logs, payload.(tracelogger.Envelope))
	return nil
}

func (s *recordingSender) SendErrorLog(_ context.Context, payload any) error {
	s.errorLogs = append(s.errorLogs, payload.(tracelogger.Envelope))
	return nil
}

func newTestLogger(t *testing.T, sender tracelogger.Sender) *tracelogger.TraceLogger {
	t.Helper()
	logger, err := tracelogger.New(tracelogger.Config{
		ServiceName: "payments",
		Environment: "test",
		Sender:      sender,
	})
	require.NoError(t, err)
	return logger
}

func newRequestCtx(method, uri string, body []byte, headers map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		req.SetBody(body)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	var rctx fasthttp.RequestCtx
	remoteAddr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 51234}
	rctx.Init(&req, remoteAddr, nil)
	return &rctx
}

func TestMiddlewareCapturesRequestAndResponse(t *testing.T) {
	sender := &recordingSender{}
	logger := newTestLogger(t, sender)

	handler := fasthttpmw.Middleware(logger, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetBodyString(`{"status":"ok"}`)
	})

	rctx := newRequestCtx(fasthttp.MethodPost, "/v1/payments/pay_123?notify=1", []byte(`{"amount":1200}`), map[string]string{
		"X-Trace-Id":       "trace-fast-1",
		"X-Caller-Service": "checkout",
		"X-User-Id":        "user-42",
	})
	handler(rctx)

	assert.Equal(t, "trace-fast-1", string(rctx.Response.Header.Peek("X-Trace-Id")))

	require.Len(t, sender.logs, 1)
	record := sender.logs[0].Records[0]
	assert.Equal(t, tracelogger.DirectionInbound, record.Direction)
	assert.Equal(t, "/v1/payments/pay_123", record.Route)
	assert.Equal(t, "POST", record.Method)
	assert.Equal(t, "checkout", record.CallerService)
	assert.Equal(t, "user-42", record.CallerUserID)
	assert.Equal(t, "192.0.2.1", record.CallerIP)
	assert.Equal(t, "trace-fast-1", record.TraceID)
	assert.Equal(t, map[string]any{"amount": float64(1200)}, record.RequestPayload)
	require.NotNil(t, record.StatusCode)
	assert.Equal(t, fasthttp.StatusCreated, *record.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok"}, record.ResponsePayload)
}

func TestMiddlewarePanicStillCapturesAndRepanics(t *testing.T) {
	sender := &recordingSender{}
	logger := newTestLogger(t, sender)

	handler := fasthttpmw.Middleware(logger, func(ctx *fasthttp.RequestCtx) {
		panic("kaboom")
	})

	rctx := newRequestCtx(fasthttp.MethodGet, "/v1/orders", nil, nil)
	require.PanicsWithValue(t, "kaboom", func() {
		handler(rctx)
	})

	assert.Equal(t, fasthttp.StatusInternalServerError, rctx.Response.StatusCode())

	require.Len(t, sender.errorLogs, 1)
	record := sender.errorLogs[0].Records[0]
	assert.Equal(t, "panic", record.ErrorType)
	require.NotNil(t, record.StatusCode)
	assert.Equal(t, fasthttp.StatusInternalServerError, *record.StatusCode)
}

func TestMiddlewareDisabledLoggerPassesThrough(t *testing.T) {
	var called bool
	handler := fasthttpmw.Middleware(tracelogger.NewNoop(), func(ctx *fasthttp.RequestCtx) {
		called = true
	})

	handler(newRequestCtx(fasthttp.MethodGet, "/", nil, nil))
	assert.True(t, called)
}
