package mcp

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpwire/mcpwire/internal/async"
	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

// RequestContext is the per-request context handed to inbound handlers.
// It carries the request id, the cancellation signal for peer-initiated
// cancels, the progress token from params._meta, and — when the session is
// instrumented — the request's trace span.
type RequestContext struct {
	ctx           context.Context
	session       *Session
	id            jsonrpc.ID
	method        string
	progressToken any
	token         async.CancelToken
	span          trace.Span
}

// Context returns a context cancelled when the peer cancels this request
// or the session closes. Handlers doing blocking work should honor it.
func (rc *RequestContext) Context() context.Context { return rc.ctx }

// RequestID returns the inbound request's id.
func (rc *RequestContext) RequestID() jsonrpc.ID { return rc.id }

// Method returns the inbound request's method.
func (rc *RequestContext) Method() string { return rc.method }

// Session returns the owning session, for handlers that call back into the
// peer (server-to-client requests, notifications).
func (rc *RequestContext) Session() *Session { return rc.session }

// Token returns the cancellation observer for this request. The zero token
// (never cancelled) is returned when cancellation does not apply.
func (rc *RequestContext) Token() async.CancelToken { return rc.token }

// ProgressToken returns the progress token from params._meta.progressToken,
// or nil when the caller did not request progress.
func (rc *RequestContext) ProgressToken() any { return rc.progressToken }

// ReportProgress emits a notifications/progress addressed by the request's
// progress token. It is a no-op when no token was supplied.
func (rc *RequestContext) ReportProgress(progress, total float64, message string) error {
	if rc.progressToken == nil || rc.session == nil {
		return nil
	}
	if rc.span != nil {
		rc.span.AddEvent("progress", trace.WithAttributes(attribute.Float64("progress", progress)))
	}
	return rc.session.Notify(NotificationProgress, &ProgressParams{
		ProgressToken: rc.progressToken,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// extractProgressToken pulls params._meta.progressToken out of raw request
// params, tolerating any shape.
func extractProgressToken(params json.RawMessage) any {
	if len(params) == 0 {
		return nil
	}
	var probe struct {
		Meta *RequestMeta `json:"_meta"`
	}
	if err := json.Unmarshal(params, &probe); err != nil || probe.Meta == nil {
		return nil
	}
	return probe.Meta.ProgressToken
}
