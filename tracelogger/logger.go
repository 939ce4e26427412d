package tracelogger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tracelens/trace-logger-go/interservice"
)

// Sender is the collaborator contract: deliver one authenticated structured
// payload to the internal observability API. Implemented by
// interservice.Client; tests inject stubs.
type Sender interface {
	SendLog(ctx context.Context, payload any) error
	SendErrorLog(ctx context.Context, payload any) error
}

// TraceLogger is the factory for capture sessions. It is safe for
// concurrent use; individual captures are not.
type TraceLogger struct {
	cfg             Config
	sender          Sender
	logger          *slog.Logger
	metrics         *metrics
	redactKeys      []string
	hostName        string
	consoleFallback bool
	enabled         bool
}

// New constructs a TraceLogger from cfg. ServiceName and Environment are
// required. Unless cfg.Sender is set, the default interservice client is
// built, which needs INTERNAL_AUTH_SECRET (or cfg.AuthSecret).
func New(cfg Config) (*TraceLogger, error) {
	if !cfg.enabled() {
		return newNoopLogger(cfg), nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sender := cfg.Sender
	if sender == nil {
		client, err := interservice.NewClient(cfg.ServiceName, interservice.Options{
			BaseURL:    cfg.normalizedAPIURL(),
			Secret:     cfg.AuthSecret,
			HTTPClient: cfg.HTTPClient,
			Logger:     logger,
			Version:    VersionHeaderValue(),
		})
		if err != nil {
			return nil, fmt.Errorf("init interservice client: %w", err)
		}
		sender = client
	}

	hostName, _ := os.Hostname()

	return &TraceLogger{
		cfg:             cfg,
		sender:          sender,
		logger:          logger,
		metrics:         newMetrics(cfg.Registerer),
		redactKeys:      lowercaseKeys(cfg.RedactKeys),
		hostName:        hostName,
		consoleFallback: cfg.consoleFallback(),
		enabled:         true,
	}, nil
}

// NewNoop returns a disabled logger whose captures never send anything.
func NewNoop() *TraceLogger {
	return newNoopLogger(Config{})
}

func newNoopLogger(cfg Config) *TraceLogger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TraceLogger{cfg: cfg, logger: logger}
}

// Enabled reports whether captures from this logger export records.
func (l *TraceLogger) Enabled() bool {
	if l == nil {
		return false
	}
	return l.enabled
}

// CaptureRequest opens a capture scope for one request. No I/O happens
// until Finish. The returned context carries the resolved trace ID and
// should flow into the wrapped body.
func (l *TraceLogger) CaptureRequest(ctx context.Context, req Request) (context.Context, *Capture) {
	ctx, traceID := EnsureTraceID(ctx, req.TraceID)

	c := &Capture{
		logger:   l,
		req:      req,
		traceID:  traceID,
		start:    time.Now(),
		metadata: req.Metadata,
	}
	if l.Enabled() {
		l.metrics.captureStarted()
	}
	return ctx, c
}

// Capture runs fn inside a capture scope, guaranteeing exactly one export
// on every exit path. An error returned by fn is recorded and returned
// unchanged; a panic is recorded and re-raised unchanged.
func (l *TraceLogger) Capture(ctx context.Context, req Request, fn func(ctx context.Context, c *Capture) error) error {
	ctx, c := l.CaptureRequest(ctx, req)
	defer c.Finish(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			c.SetPanic(rec)
			panic(rec)
		}
	}()

	err := fn(ctx, c)
	if err != nil {
		c.SetError(err)
	}
	return err
}

func lowercaseKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.ToLower(key))
	}
	return out
}
