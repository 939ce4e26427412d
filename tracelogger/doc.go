// Package tracelogger captures per-request trace events and forwards them
// to the internal observability API.
//
// A TraceLogger is bound to an immutable Config and hands out capture
// sessions: one session wraps one inbound or outbound request, optionally
// records the response, and on Finish exports exactly one record through
// the shared interservice client. Export is best-effort; failures are
// logged and swallowed so tracing never affects the primary request path.
//
// The nethttp, ginhttp and fasthttp subpackages wire capture sessions into
// the respective HTTP stacks.
package tracelogger
