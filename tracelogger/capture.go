package tracelogger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime/debug"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Request holds the fields supplied when a capture scope is opened.
// Direction, Route and Method are required; everything else is optional.
type Request struct {
	Direction Direction
	Route     string
	Method    string

	CallerService string
	CallerUserID  string
	CallerIP      string

	// Payload is the request body, opaque to the trace logger beyond
	// redaction. Serialized as-is.
	Payload  any
	Metadata map[string]any

	// TraceID overrides the trace ID resolved from the context.
	TraceID string
}

// Capture is the scoped session for one traced request. It is owned by a
// single goroutine and is not safe for concurrent use. SetResponse may be
// called any number of times before Finish; the last call wins. Finish
// performs exactly one send and further calls are no-ops.
type Capture struct {
	logger  *TraceLogger
	req     Request
	traceID string
	start   time.Time

	status      *int
	respPayload any
	metadata    map[string]any
	err         error
	stack       []byte

	finished bool
}

// TraceID returns the trace ID resolved when the capture was opened.
func (c *Capture) TraceID() string {
	if c == nil {
		return ""
	}
	return c.traceID
}

// SetResponse records the response observed inside the scope. Calling it
// again replaces the previously recorded values.
func (c *Capture) SetResponse(statusCode int, responsePayload any) {
	if c == nil {
		return
	}
	c.status = &statusCode
	c.respPayload = responsePayload
}

// AddMetadata attaches an extra key/value pair to the record.
func (c *Capture) AddMetadata(key string, value any) {
	if c == nil {
		return
	}
	if c.metadata == nil {
		c.metadata = make(map[string]any)
	}
	c.metadata[key] = value
}

// SetError records the error the wrapped body failed with. It does not
// alter how that error propagates to the caller.
func (c *Capture) SetError(err error) {
	if c == nil || err == nil {
		return
	}
	c.err = err
	c.stack = nil
}

// SetPanic records a recovered panic value together with the current stack.
// Callers are expected to re-panic after Finish.
func (c *Capture) SetPanic(recovered any) {
	if c == nil {
		return
	}
	c.err = fmt.Errorf("panic: %v", recovered)
	c.stack = debug.Stack()
}

// Finish closes the capture scope: it builds the event record and hands it
// to the collaborator exactly once. Export failures are logged and
// swallowed so tracing never breaks the primary request path. Finish is
// idempotent.
func (c *Capture) Finish(ctx context.Context) {
	if c == nil || c.finished {
		return
	}
	c.finished = true

	l := c.logger
	if l == nil || !l.enabled {
		return
	}

	rec := c.buildRecord(l)
	env := Envelope{Records: []Record{rec}, IngestionVersion: ingestionVersion}

	var err error
	if c.errorRecord() {
		err = l.sender.SendErrorLog(ctx, env)
	} else {
		err = l.sender.SendLog(ctx, env)
	}
	if err != nil {
		l.metrics.exportFailed()
		l.logger.Warn("trace export failed",
			"error", err,
			"trace_id", c.traceID,
			"route", c.req.Route,
		)
		if l.consoleFallback {
			if raw, merr := json.Marshal(rec); merr == nil {
				l.logger.Info("trace record", "record", string(raw))
			}
		}
		return
	}
	l.metrics.exported(c.req.Direction)
}

func (c *Capture) errorRecord() bool {
	if c.err != nil {
		return true
	}
	return c.status != nil && *c.status >= 400
}

func (c *Capture) buildRecord(l *TraceLogger) Record {
	duration := time.Since(c.start)

	rec := Record{
		TraceID:       c.traceID,
		Service:       l.cfg.ServiceName,
		Environment:   l.cfg.Environment,
		Timestamp:     time.Now().UTC().Format(timestampLayout),
		Direction:     c.req.Direction,
		Route:         c.req.Route,
		Method:        c.req.Method,
		DurationMS:    math.Round(duration.Seconds()*1e5) / 100,
		CallerService: c.req.CallerService,
		CallerUserID:  c.req.CallerUserID,
		CallerIP:      c.req.CallerIP,
		HostName:      l.hostName,
	}

	if c.req.Payload != nil {
		rec.RequestPayload = redactPayload(c.req.Payload, l.redactKeys)
	}
	if c.status != nil {
		code := *c.status
		rec.StatusCode = &code
	}
	if c.respPayload != nil {
		rec.ResponsePayload = redactPayload(c.respPayload, l.redactKeys)
	}
	if len(c.metadata) > 0 {
		rec.Metadata = c.metadata
	}
	if c.err != nil {
		rec.ErrorType = fmt.Sprintf("%T", c.err)
		rec.ErrorMessage = c.err.Error()
		if len(c.stack) > 0 {
			rec.ErrorType = "panic"
			rec.ErrorStack = string(c.stack)
		}
	}
	return rec
}
