package ginhttp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelens/trace-logger-go/ginhttp"
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

func newRouter(logger *tracelogger.TraceLogger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ginhttp.Middleware(logger))
	return router
}

func TestMiddlewareCapturesRouteTemplate(t *testing.T) {
	sender := &recordingSender{}
	router := newRouter(newTestLogger(t, sender))

	router.POST("/v1/payments/:payment_id", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/pay_123", strings.NewReader(`{"amount":1200}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trace-Id", "trace-gin-1")
	req.Header.Set("X-Caller-Service", "checkout")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "trace-gin-1", rec.Header().Get("X-Trace-Id"))

	require.Len(t, sender.logs, 1)
	record := sender.logs[0].Records[0]
	assert.Equal(t, "/v1/payments/:payment_id", record.Route)
	assert.Equal(t, "POST", record.Method)
	assert.Equal(t, "checkout", record.CallerService)
	assert.Equal(t, "trace-gin-1", record.TraceID)
	assert.Equal(t, map[string]any{"amount": float64(1200)}, record.RequestPayload)
	require.NotNil(t, record.StatusCode)
	assert.Equal(t, http.StatusCreated, *record.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok"}, record.ResponsePayload)
}

func TestMiddlewareRecordsGinErrors(t *testing.T) {
	sender := &recordingSender{}
	router := newRouter(newTestLogger(t, sender))

	router.GET("/v1/orders/:order_id", func(c *gin.Context) {
		c.Error(assert.AnError)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/ord_1", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Empty(t, sender.logs)
	require.Len(t, sender.errorLogs, 1)
	record := sender.errorLogs[0].Records[0]
	require.NotNil(t, record.StatusCode)
	assert.Equal(t, http.StatusBadGateway, *record.StatusCode)
	assert.Equal(t, assert.AnError.Error(), record.ErrorMessage)
}

func TestMiddlewarePanicStillCapturesAndRepanics(t *testing.T) {
	sender := &recordingSender{}
	router := newRouter(newTestLogger(t, sender))

	router.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	require.Panics(t, func() {
		router.ServeHTTP(httptest.NewRecorder(), req)
	})

	require.Len(t, sender.errorLogs, 1)
	record := sender.errorLogs[0].Records[0]
	assert.Equal(t, "panic", record.ErrorType)
	require.NotNil(t, record.StatusCode)
	assert.Equal(t, http.StatusInternalServerError, *record.StatusCode)
}

func TestMiddlewareFallsBackToPathForUnknownRoute(t *testing.T) {
	sender := &recordingSender{}
	router := newRouter(newTestLogger(t, sender))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sender.errorLogs, 1)
	assert.Equal(t, "/nope", sender.errorLogs[0].Records[0].Route)
}
