package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpwire/mcpwire/internal/async"
	"github.com/mcpwire/mcpwire/internal/metrics"
	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
	"github.com/mcpwire/mcpwire/pkg/transport"
)

// Errors a caller of an outbound request can observe locally.
var (
	// ErrTimeout retires a pending request whose deadline elapsed. No
	// notification is sent to the peer; cancellation is a separate action.
	ErrTimeout = errors.New("mcp: request timed out")
	// ErrCancelled retires a pending request cancelled locally.
	ErrCancelled = errors.New("mcp: request cancelled")
	// ErrClosed means the session closed underneath the call.
	ErrClosed = errors.New("mcp: session closed")
	// ErrTransport wraps I/O failures that drained the session.
	ErrTransport = errors.New("mcp: transport error")
)

// RequestHandler serves one peer-initiated request. The returned value is
// marshaled into the response result. Returning a *jsonrpc.Error sends it
// verbatim; any other error becomes an internal error.
type RequestHandler func(rc *RequestContext, params json.RawMessage) (any, error)

// NotificationHandler serves one peer-initiated notification.
type NotificationHandler func(rc *RequestContext, params json.RawMessage)

// deadlineTickInterval is the granularity of timeout detection.
const deadlineTickInterval = 10 * time.Millisecond

// pendingRequest tracks one outbound request awaiting its response. It is
// created before the frame leaves the transport and destroyed exactly once
// on whichever completion path wins.
type pendingRequest struct {
	method    string
	onSuccess func(result json.RawMessage)
	onError   func(err error)
	created   time.Time
	cancel    *async.CancelSource
}

// inboundRequest tracks one peer-initiated request while its handler runs,
// so a notifications/cancelled can reach the handler's token.
type inboundRequest struct {
	source     *async.CancelSource
	cancelFunc context.CancelFunc
}

// peer is the session's reactor: it classifies every inbound frame and
// either completes a pending outbound request, dispatches to a handler, or
// signals cancellation. Outbound calls may originate on any goroutine; the
// transport serializes frames.
type peer struct {
	session   *Session
	transport transport.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer // nil when uninstrumented

	logPayloads bool
	maxDump     int

	ids       async.IDAllocator
	deadlines *async.DeadlineTracker

	mu            sync.Mutex
	state         State
	pending       map[jsonrpc.ID]*pendingRequest
	inbound       map[jsonrpc.ID]*inboundRequest
	handlers      map[string]RequestHandler
	notifHandlers map[string]NotificationHandler

	tickerStop chan struct{}
	tickerDone chan struct{}
}

func newPeer(s *Session, t transport.Transport) *peer {
	return &peer{
		session:       s,
		transport:     t,
		deadlines:     async.NewDeadlineTracker(),
		state:         StateUnconnected,
		pending:       make(map[jsonrpc.ID]*pendingRequest),
		inbound:       make(map[jsonrpc.ID]*inboundRequest),
		handlers:      make(map[string]RequestHandler),
		notifHandlers: make(map[string]NotificationHandler),
	}
}

// start wires the transport callbacks, connects, and begins deadline
// ticking.
func (p *peer) start() error {
	p.mu.Lock()
	if p.state != StateUnconnected {
		p.mu.Unlock()
		return fmt.Errorf("mcp: start in state %s", p.state)
	}
	p.state = StateConnecting
	p.tickerStop = make(chan struct{})
	p.tickerDone = make(chan struct{})
	p.mu.Unlock()

	p.transport.SetOnMessage(p.handleMessage)
	p.transport.SetOnError(p.handleTransportError)
	if err := p.transport.Connect(); err != nil {
		p.setState(StateClosed)
		return fmt.Errorf("mcp: connect: %w", err)
	}

	go p.tickLoop()
	return nil
}

func (p *peer) tickLoop() {
	defer close(p.tickerDone)
	ticker := time.NewTicker(deadlineTickInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			p.deadlines.Tick(now)
		case <-p.tickerStop:
			return
		}
	}
}

func (p *peer) currentState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// call sends an outbound request and blocks until a response, timeout,
// cancellation, or session close retires it.
func (p *peer) call(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	id := jsonrpc.Int64ID(p.ids.Next())

	type outcome struct {
		result json.RawMessage
		err    error
	}
	resultCh := make(chan outcome, 1)

	pr := &pendingRequest{
		method:    method,
		onSuccess: func(result json.RawMessage) { resultCh <- outcome{result: result} },
		onError:   func(err error) { resultCh <- outcome{err: err} },
		created:   time.Now(),
		cancel:    async.NewCancelSource(),
	}

	// Register before the frame leaves the transport so the response
	// cannot race past us.
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.pending[id] = pr
	n := len(p.pending)
	p.mu.Unlock()
	p.metrics.SetPending(n)

	p.deadlines.Set(id, timeout, func(id jsonrpc.ID) {
		if pr := p.takePending(id); pr != nil {
			p.metrics.ObserveTimeout()
			pr.onError(fmt.Errorf("%w after %s", ErrTimeout, timeout))
		}
	})

	if err := p.send(&jsonrpc.Request{ID: id, Method: method, Params: params}); err != nil {
		p.deadlines.Cancel(id)
		p.takePending(id)
		return nil, err
	}

	select {
	case out := <-resultCh:
		p.metrics.ObserveDuration(method, time.Since(pr.created).Seconds())
		return out.result, out.err

	case <-ctx.Done():
		// Local cancel: retire the entry, then tell the peer. A late
		// response will find no pending entry and be dropped.
		if taken := p.takePending(id); taken != nil {
			p.deadlines.Cancel(id)
			p.metrics.ObserveCancelled()
			reason := context.Cause(ctx).Error()
			p.notify(NotificationCancelled, mustMarshal(&CancelledParams{
				RequestID: mustMarshalID(id),
				Reason:    reason,
			}))
			return nil, fmt.Errorf("%w: %s", ErrCancelled, reason)
		}
		// The response won the race; deliver it.
		out := <-resultCh
		return out.result, out.err
	}
}

// takePending removes and returns the pending entry for id, or nil if some
// other completion path already won.
func (p *peer) takePending(id jsonrpc.ID) *pendingRequest {
	p.mu.Lock()
	pr, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	n := len(p.pending)
	p.mu.Unlock()
	p.metrics.SetPending(n)
	if !ok {
		return nil
	}
	return pr
}

// notify sends a fire-and-forget notification.
func (p *peer) notify(method string, params json.RawMessage) error {
	return p.send(&jsonrpc.Notification{Method: method, Params: params})
}

// send encodes one message and hands it to the transport.
func (p *peer) send(msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encode: %w", err)
	}
	p.logPayload("send", data)
	p.metrics.ObserveSent(messageKind(msg))
	if err := p.transport.Send(data); err != nil {
		return fmt.Errorf("mcp: send: %w", err)
	}
	return nil
}

// handleMessage is the single inbound dispatch path, invoked from the
// transport's reader. It must not block: handlers run on their own
// goroutines so one that awaits a peer call cannot deadlock the reader.
func (p *peer) handleMessage(data []byte) {
	p.logPayload("recv", data)

	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		p.metrics.ObserveReceived("invalid")
		wireErr := &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: err.Error()}
		if e := new(jsonrpc.Error); errors.As(err, &e) {
			wireErr = e
		}
		// Recover the id lexically so the error reaches the right caller.
		_ = p.send(jsonrpc.NewErrorResponse(jsonrpc.ExtractID(data), wireErr))
		return
	}

	switch m := msg.(type) {
	case *jsonrpc.Response:
		p.metrics.ObserveReceived("response")
		p.handleResponse(m)
	case *jsonrpc.Request:
		p.metrics.ObserveReceived("request")
		p.handleRequest(m)
	case *jsonrpc.Notification:
		p.metrics.ObserveReceived("notification")
		p.handleNotification(m)
	}
}

// handleResponse completes the matching pending request. Responses with no
// live pending entry — late arrivals after a timeout or cancel — are
// dropped with a log line.
func (p *peer) handleResponse(m *jsonrpc.Response) {
	pr := p.takePending(m.ID)
	if pr == nil {
		p.logger.Debug("dropping response for unknown request", "id", m.ID.String())
		return
	}
	p.deadlines.Cancel(m.ID)
	if m.Error != nil {
		pr.onError(m.Error)
		return
	}
	pr.onSuccess(m.Result)
}

// handleRequest gates by handshake state and dispatches to a handler on a
// fresh goroutine.
func (p *peer) handleRequest(m *jsonrpc.Request) {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	if state == StateClosed {
		return
	}
	if state != StateInitialized && m.Method != MethodInitialize && m.Method != MethodPing {
		_ = p.send(jsonrpc.NewErrorResponse(m.ID,
			jsonrpc.NewError(jsonrpc.CodeNotInitialized, "session not initialized")))
		return
	}

	ctx, cancelFunc := context.WithCancel(p.session.baseCtx)
	source := async.NewCancelSource()

	rc := &RequestContext{
		ctx:           ctx,
		session:       p.session,
		id:            m.ID,
		method:        m.Method,
		progressToken: extractProgressToken(m.Params),
		token:         source.Token(),
	}
	if p.tracer != nil {
		var span trace.Span
		rc.ctx, span = p.tracer.Start(ctx, "mcp.request",
			trace.WithAttributes(
				attribute.String("rpc.method", m.Method),
				attribute.String("rpc.id", m.ID.String()),
			))
		rc.span = span
	}

	p.mu.Lock()
	p.inbound[m.ID] = &inboundRequest{source: source, cancelFunc: cancelFunc}
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.inbound, m.ID)
			p.mu.Unlock()
			cancelFunc()
			if rc.span != nil {
				rc.span.End()
			}
		}()

		result, err := p.dispatch(rc, m.Method, m.Params)

		// A cancelled request gets no response; the peer already gave up
		// on it.
		if source.Token().IsCancelled() {
			p.logger.Debug("suppressing response for cancelled request", "id", m.ID.String())
			return
		}

		var resp *jsonrpc.Response
		if err != nil {
			wireErr := toWireError(err)
			if rc.span != nil {
				rc.span.SetStatus(codes.Error, wireErr.Message)
			}
			resp = jsonrpc.NewErrorResponse(m.ID, wireErr)
		} else {
			raw, merr := json.Marshal(result)
			if merr != nil {
				resp = jsonrpc.NewErrorResponse(m.ID,
					jsonrpc.Errorf(jsonrpc.CodeInternalError, "marshal result: %v", merr))
			} else {
				resp = jsonrpc.NewResponse(m.ID, raw)
			}
		}
		if err := p.send(resp); err != nil {
			p.logger.Warn("failed to send response", "id", m.ID.String(), "error", err)
		}
	}()
}

// dispatch routes one inbound request: the built-in method table first (so
// the hot path does not touch the user map), then user handlers.
func (p *peer) dispatch(rc *RequestContext, method string, params json.RawMessage) (any, error) {
	if result, handled, err := p.session.handleBuiltin(rc, method, params); handled {
		return result, err
	}

	p.mu.Lock()
	handler, ok := p.handlers[method]
	p.mu.Unlock()
	if !ok {
		return nil, jsonrpc.Errorf(jsonrpc.CodeMethodNotFound, "method not found: %s", method)
	}
	return handler(rc, params)
}

// handleNotification routes one inbound notification. The built-in pair
// (cancelled, initialized) is handled inline; the rest go to user handlers.
func (p *peer) handleNotification(m *jsonrpc.Notification) {
	switch m.Method {
	case NotificationCancelled:
		p.handleCancelled(m.Params)
		return
	case NotificationInitialized:
		p.session.handleInitialized()
		return
	}

	p.mu.Lock()
	handler, ok := p.notifHandlers[m.Method]
	p.mu.Unlock()
	if !ok {
		p.logger.Debug("dropping unhandled notification", "method", m.Method)
		return
	}
	rc := &RequestContext{ctx: p.session.baseCtx, session: p.session, method: m.Method}
	go handler(rc, m.Params)
}

// handleCancelled signals the cancellation token of the matching inbound
// request. The lookup is against the inbound tracker, not the outbound
// pending map.
func (p *peer) handleCancelled(params json.RawMessage) {
	var cp CancelledParams
	if err := json.Unmarshal(params, &cp); err != nil {
		p.logger.Debug("malformed cancelled notification", "error", err)
		return
	}
	var id jsonrpc.ID
	if err := id.UnmarshalJSON(cp.RequestID); err != nil || !id.IsValid() {
		p.logger.Debug("cancelled notification without usable id")
		return
	}

	p.mu.Lock()
	ir, ok := p.inbound[id]
	p.mu.Unlock()
	if !ok {
		p.logger.Debug("cancelled notification for unknown request", "id", id.String())
		return
	}
	reason := cp.Reason
	if reason == "" {
		reason = "cancelled by peer"
	}
	ir.source.Cancel(reason)
	ir.cancelFunc()
}

// handleTransportError drains every pending request with a transport error
// and closes the session. Fatal per the error policy: transport failures
// are never isolated to one call.
func (p *peer) handleTransportError(err error) {
	p.logger.Warn("transport error, draining session", "error", err)
	// Close first so no new request can register, then drain what was in
	// flight; this order leaves no window for a call to slip in unretired.
	p.shutdown()
	p.drain(fmt.Errorf("%w: %v", ErrTransport, err))
}

// drain retires every pending request with err. Callbacks run outside the
// lock.
func (p *peer) drain(err error) {
	p.mu.Lock()
	drained := make([]*pendingRequest, 0, len(p.pending))
	for id, pr := range p.pending {
		p.deadlines.Cancel(id)
		drained = append(drained, pr)
		delete(p.pending, id)
	}
	p.mu.Unlock()
	p.metrics.SetPending(0)

	for _, pr := range drained {
		pr.onError(err)
	}
}

// shutdown moves to Closed, stops the ticker, cancels inbound handlers and
// disconnects the transport. Idempotent.
func (p *peer) shutdown() {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	inbound := make([]*inboundRequest, 0, len(p.inbound))
	for id, ir := range p.inbound {
		inbound = append(inbound, ir)
		delete(p.inbound, id)
	}
	tickerStop := p.tickerStop
	tickerDone := p.tickerDone
	p.mu.Unlock()

	for _, ir := range inbound {
		ir.source.Cancel("session closed")
		ir.cancelFunc()
	}
	if tickerStop != nil {
		close(tickerStop)
		<-tickerDone
	}
	_ = p.transport.Disconnect()
}

// close shuts the session down and drains pending requests. The drain is
// synchronous: no response callback runs after close returns.
func (p *peer) close() {
	p.shutdown()
	p.drain(ErrClosed)
}

// setRequestHandler registers a user handler for a peer-initiated method.
func (p *peer) setRequestHandler(method string, fn RequestHandler) {
	p.mu.Lock()
	p.handlers[method] = fn
	p.mu.Unlock()
}

// setNotificationHandler registers a user handler for a notification.
func (p *peer) setNotificationHandler(method string, fn NotificationHandler) {
	p.mu.Lock()
	p.notifHandlers[method] = fn
	p.mu.Unlock()
}

// logPayload dumps wire traffic when payload logging is on, truncated to
// the configured cap.
func (p *peer) logPayload(dir string, data []byte) {
	if !p.logPayloads {
		return
	}
	dump := data
	truncated := false
	if p.maxDump > 0 && len(dump) > p.maxDump {
		dump = dump[:p.maxDump]
		truncated = true
	}
	p.logger.Debug("wire payload", "dir", dir, "bytes", len(data), "truncated", truncated, "payload", string(dump))
}

// toWireError maps a handler error onto the wire: a *jsonrpc.Error passes
// through, anything else becomes an internal error.
func toWireError(err error) *jsonrpc.Error {
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) {
		return wireErr
	}
	return jsonrpc.Errorf(jsonrpc.CodeInternalError, "%v", err)
}

func messageKind(msg jsonrpc.Message) string {
	switch msg.(type) {
	case *jsonrpc.Request:
		return "request"
	case *jsonrpc.Response:
		return "response"
	default:
		return "notification"
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mcp: marshal %T: %v", v, err))
	}
	return data
}

func mustMarshalID(id jsonrpc.ID) json.RawMessage {
	data, err := id.MarshalJSON()
	if err != nil {
		panic(fmt.Sprintf("mcp: marshal id: %v", err))
	}
	return data
}
