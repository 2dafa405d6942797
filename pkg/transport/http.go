package transport

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

// SessionHeader carries the session string on both request directions.
const SessionHeader = "Mcp-Session-Id"

// LastEventIDHeader lets a reconnecting client resume its event stream.
const LastEventIDHeader = "Last-Event-ID"

// Default HTTP transport tuning. Overridable per transport via HTTPOptions.
const (
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultReplyTimeout       = 30 * time.Second
	defaultMaxBufferedEvents  = 1024
)

// sessionNotFoundBody is the JSON-RPC error body returned for missing or
// expired sessions, paired with HTTP 404.
var sessionNotFoundBody = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32001,"message":"Session not found"}}`)

// HTTPOptions tunes an HTTPTransport.
type HTTPOptions struct {
	// SessionIdleTimeout is how long a session survives without traffic.
	// Defaults to 30 minutes.
	SessionIdleTimeout time.Duration

	// ReplyTimeout bounds how long a POST waits for the paired reply
	// before falling back to SSE delivery. Defaults to 30 seconds.
	ReplyTimeout time.Duration

	// MaxBufferedEvents caps the per-session replay buffer; the oldest
	// events are dropped past the cap, which limits how far back a client
	// can resume. Defaults to 1024.
	MaxBufferedEvents int

	Logger *slog.Logger
}

// httpSession is the per-session state: the SSE replay buffer, the event-id
// counter, and the waiters for synchronous POST replies.
type httpSession struct {
	id            string
	events        []Event
	nextEventID   uint64
	lastDelivered uint64
	lastActivity  time.Time
	waiters       map[jsonrpc.ID]chan []byte
}

// HTTPTransport is the stateful HTTP/SSE session transport. Inbound frames
// arrive through HandlePost; outbound frames either complete a waiting POST
// (when they are the paired reply) or are buffered for SSE delivery through
// HandleGet.
//
// The transport does not run an HTTP server. User code wraps its stack's
// request/response objects in ResponseWriter and SSEWriter adapters and
// calls the two handlers; Handler in this package does that for net/http.
type HTTPTransport struct {
	idleTimeout  time.Duration
	replyTimeout time.Duration
	maxBuffered  int
	logger       *slog.Logger

	onMessage MessageHandler
	onError   ErrorHandler

	mu        sync.Mutex
	connected bool
	current   string // session id created by Connect
	sessions  map[string]*httpSession
}

// NewHTTPTransport creates an HTTP/SSE transport with the given options.
func NewHTTPTransport(opts *HTTPOptions) *HTTPTransport {
	if opts == nil {
		opts = &HTTPOptions{}
	}
	t := &HTTPTransport{
		idleTimeout:  opts.SessionIdleTimeout,
		replyTimeout: opts.ReplyTimeout,
		maxBuffered:  opts.MaxBufferedEvents,
		logger:       opts.Logger,
		sessions:     make(map[string]*httpSession),
	}
	if t.idleTimeout <= 0 {
		t.idleTimeout = DefaultSessionIdleTimeout
	}
	if t.replyTimeout <= 0 {
		t.replyTimeout = DefaultReplyTimeout
	}
	if t.maxBuffered <= 0 {
		t.maxBuffered = defaultMaxBufferedEvents
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// SetOnMessage registers the inbound message callback.
func (t *HTTPTransport) SetOnMessage(fn MessageHandler) { t.onMessage = fn }

// SetOnError registers the error callback.
func (t *HTTPTransport) SetOnError(fn ErrorHandler) { t.onError = fn }

// Connect creates the transport's own session.
func (t *HTTPTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	t.connected = true
	t.current = t.createSessionLocked().id
	return nil
}

// Disconnect terminates every session.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.current = ""
	for id, sess := range t.sessions {
		for _, ch := range sess.waiters {
			close(ch)
		}
		delete(t.sessions, id)
	}
	return nil
}

// IsConnected reports whether the transport has an active session.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SessionID returns the session created by Connect.
func (t *HTTPTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// SessionCount returns the number of live sessions (after GC).
func (t *HTTPTransport) SessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gcLocked(time.Now())
	return len(t.sessions)
}

// Send routes one outbound frame. A response whose id matches a waiting
// POST completes that POST; everything else is appended to the current
// session's SSE buffer.
func (t *HTTPTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.current == "" {
		return ErrNotConnected
	}
	sess, ok := t.sessions[t.current]
	if !ok {
		return fmt.Errorf("transport: session %s expired", t.current)
	}

	if msg, err := jsonrpc.DecodeMessage(data); err == nil {
		if resp, ok := msg.(*jsonrpc.Response); ok {
			if ch, ok := sess.waiters[resp.ID]; ok {
				delete(sess.waiters, resp.ID)
				ch <- data
				return nil
			}
		}
	}

	t.bufferLocked(sess, data)
	return nil
}

// bufferLocked appends one frame to the session's replay buffer.
func (t *HTTPTransport) bufferLocked(sess *httpSession, data []byte) {
	sess.nextEventID++
	sess.events = append(sess.events, Event{ID: sess.nextEventID, Data: append([]byte(nil), data...)})
	if overflow := len(sess.events) - t.maxBuffered; overflow > 0 {
		t.logger.Warn("sse buffer overflow, dropping oldest events",
			"session_id", sess.id,
			"dropped", overflow,
		)
		sess.events = append([]Event(nil), sess.events[overflow:]...)
	}
}

// HandlePost processes one inbound client frame. The body is delivered to
// the message callback synchronously. When the body is a request, the
// handler waits (bounded by ReplyTimeout) for the paired reply and returns
// it in the response body; notifications and responses are acknowledged
// with 202 Accepted.
func (t *HTTPTransport) HandlePost(sessionID string, body []byte, w ResponseWriter) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		writeSessionNotFound(w)
		return
	}
	t.gcLocked(time.Now())

	var sess *httpSession
	if sessionID != "" {
		var ok bool
		if sess, ok = t.sessions[sessionID]; !ok {
			t.mu.Unlock()
			writeSessionNotFound(w)
			return
		}
		t.current = sessionID
	} else if sess = t.sessions[t.current]; sess == nil {
		sess = t.createSessionLocked()
		t.current = sess.id
	}
	sess.lastActivity = time.Now()

	// A request body gets a synchronous paired reply; register the waiter
	// before delivering so the reply cannot race past us.
	var replyCh chan []byte
	var reqID jsonrpc.ID
	if msg, err := jsonrpc.DecodeMessage(body); err == nil {
		if req, ok := msg.(*jsonrpc.Request); ok {
			replyCh = make(chan []byte, 1)
			reqID = req.ID
			sess.waiters[reqID] = replyCh
		}
	}
	onMessage := t.onMessage
	sessID := sess.id
	t.mu.Unlock()

	w.SetHeader(SessionHeader, sessID)

	if onMessage != nil {
		onMessage(body)
	}

	if replyCh == nil {
		w.SetStatus(202)
		return
	}

	select {
	case reply, ok := <-replyCh:
		if !ok { // transport torn down
			writeSessionNotFound(w)
			return
		}
		t.writeReply(w, reply)
	case <-time.After(t.replyTimeout):
		// Peer did not produce the reply in time; remove the waiter so
		// Send buffers it for the SSE stream instead.
		t.mu.Lock()
		if sess, ok := t.sessions[sessID]; ok {
			delete(sess.waiters, reqID)
		}
		t.mu.Unlock()

		// Send may have taken the waiter just before the removal and
		// already delivered into replyCh; that path bypasses the SSE
		// buffer, so drain the channel or the reply is lost for good.
		select {
		case reply, ok := <-replyCh:
			if !ok {
				writeSessionNotFound(w)
				return
			}
			t.writeReply(w, reply)
		default:
			w.SetStatus(202)
		}
	}
}

// writeReply writes one paired JSON-RPC reply to a POST response.
func (t *HTTPTransport) writeReply(w ResponseWriter, reply []byte) {
	w.SetHeader("Content-Type", "application/json")
	w.SetStatus(200)
	if err := w.Write(reply); err != nil && t.onError != nil {
		t.onError(fmt.Errorf("transport: post reply: %w", err))
	}
}

// HandleGet opens the SSE stream for a session, replaying buffered events.
// With a Last-Event-ID of N, events N+1.. are delivered; without one,
// delivery resumes after the last event this session already delivered.
func (t *HTTPTransport) HandleGet(sessionID, lastEventID string, w SSEWriter) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		w.SetHeader("Content-Type", "application/json")
		w.SetStatus(404)
		_ = w.WriteEvent(Event{Data: sessionNotFoundBody})
		return
	}
	t.gcLocked(time.Now())

	var sess *httpSession
	if sessionID != "" {
		var ok bool
		if sess, ok = t.sessions[sessionID]; !ok {
			t.mu.Unlock()
			w.SetHeader("Content-Type", "application/json")
			w.SetStatus(404)
			_ = w.WriteEvent(Event{Data: sessionNotFoundBody})
			return
		}
		t.current = sessionID
	} else if sess = t.sessions[t.current]; sess == nil {
		sess = t.createSessionLocked()
		t.current = sess.id
	}
	sess.lastActivity = time.Now()

	after := sess.lastDelivered
	if lastEventID != "" {
		if n, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
			after = n
		}
	}

	var pending []Event
	for _, ev := range sess.events {
		if ev.ID > after {
			pending = append(pending, ev)
		}
	}
	if n := len(pending); n > 0 && pending[n-1].ID > sess.lastDelivered {
		sess.lastDelivered = pending[n-1].ID
	}
	sessID := sess.id
	t.mu.Unlock()

	w.SetHeader("Content-Type", SSEContentType)
	w.SetHeader("Cache-Control", SSECacheControl)
	w.SetHeader("Connection", SSEConnection)
	w.SetHeader(SessionHeader, sessID)
	w.SetStatus(200)

	for _, ev := range pending {
		if err := w.WriteEvent(ev); err != nil {
			if t.onError != nil {
				t.onError(fmt.Errorf("transport: sse write: %w", err))
			}
			return
		}
	}
}

// createSessionLocked allocates a session with a fresh UUIDv4 id.
func (t *HTTPTransport) createSessionLocked() *httpSession {
	sess := &httpSession{
		id:           uuid.NewString(),
		lastActivity: time.Now(),
		waiters:      make(map[jsonrpc.ID]chan []byte),
	}
	t.sessions[sess.id] = sess
	t.logger.Debug("created http session", "session_id", sess.id)
	return sess
}

// gcLocked removes sessions idle past the timeout.
func (t *HTTPTransport) gcLocked(now time.Time) {
	for id, sess := range t.sessions {
		if now.Sub(sess.lastActivity) >= t.idleTimeout {
			t.logger.Debug("expiring idle http session", "session_id", id)
			for _, ch := range sess.waiters {
				close(ch)
			}
			delete(t.sessions, id)
		}
	}
}

func writeSessionNotFound(w ResponseWriter) {
	w.SetHeader("Content-Type", "application/json")
	w.SetStatus(404)
	_ = w.Write(sessionNotFoundBody)
}
