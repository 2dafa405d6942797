package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpwire/mcpwire/internal/metrics"
	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
	"github.com/mcpwire/mcpwire/pkg/transport"
)

// DefaultRequestTimeout bounds outbound calls that set no tighter deadline.
const DefaultRequestTimeout = 30 * time.Second

// SessionOptions configures a session. All fields are optional except
// Implementation, which identifies this endpoint to its peer.
type SessionOptions struct {
	// Implementation is this endpoint's name and version.
	Implementation Implementation

	// Capabilities advertised when this session initiates the handshake.
	Capabilities ClientCapabilities

	// ServerCapabilities overrides the capabilities advertised when the
	// remote peer initiates. Defaults to list-changed support for all
	// three registries.
	ServerCapabilities *ServerCapabilities

	// Instructions is free text handed to a connecting client.
	Instructions string

	// ProtocolVersion advertised on initialize. Defaults to the latest
	// supported revision.
	ProtocolVersion string

	// DefaultTimeout bounds outbound requests. Defaults to 30 seconds.
	DefaultTimeout time.Duration

	Logger *slog.Logger

	// TracerProvider enables per-request spans when set.
	TracerProvider trace.TracerProvider

	// MetricsRegistry enables Prometheus collectors when set.
	MetricsRegistry prometheus.Registerer

	// LogPayloads dumps wire traffic at debug level, truncated to
	// MaxPayloadDump bytes.
	LogPayloads    bool
	MaxPayloadDump int
}

// Session binds one transport to one peer and exposes the user-facing
// surface: the handshake, outbound calls and notifications, and the three
// server-side registries.
type Session struct {
	opts      SessionOptions
	logger    *slog.Logger
	transport transport.Transport
	peer      *peer

	tools     *ToolRegistry
	resources *ResourceRegistry
	prompts   *PromptRegistry

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	serverInfo *InitializeResult // set after a client-side handshake
	clientInfo *Implementation   // set after a server-side handshake
	negotiated string
}

// NewSession creates a session over the given transport. Connect must be
// called before any traffic flows.
func NewSession(t transport.Transport, opts *SessionOptions) *Session {
	if opts == nil {
		opts = &SessionOptions{}
	}
	s := &Session{
		opts:      *opts,
		logger:    opts.Logger,
		transport: t,
		tools:     NewToolRegistry(),
		resources: NewResourceRegistry(),
		prompts:   NewPromptRegistry(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.opts.DefaultTimeout <= 0 {
		s.opts.DefaultTimeout = DefaultRequestTimeout
	}
	if s.opts.ProtocolVersion == "" {
		s.opts.ProtocolVersion = LatestProtocolVersion
	}
	if s.opts.MaxPayloadDump <= 0 {
		s.opts.MaxPayloadDump = 2048
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())

	s.peer = newPeer(s, t)
	s.peer.logger = s.logger
	s.peer.logPayloads = s.opts.LogPayloads
	s.peer.maxDump = s.opts.MaxPayloadDump
	if opts.MetricsRegistry != nil {
		s.peer.metrics = metrics.New(opts.MetricsRegistry)
	}
	if opts.TracerProvider != nil {
		s.peer.tracer = opts.TracerProvider.Tracer("github.com/mcpwire/mcpwire/pkg/mcp")
	}

	// Registry changes fan out as list_changed notifications once the
	// session is open.
	s.tools.SetNotify(s.listChangedNotifier(NotificationToolsListChanged))
	s.resources.SetNotify(s.listChangedNotifier(NotificationResourcesListChanged))
	s.prompts.SetNotify(s.listChangedNotifier(NotificationPromptsListChanged))

	return s
}

func (s *Session) listChangedNotifier(method string) func() {
	return func() {
		if s.State() != StateInitialized {
			return
		}
		if err := s.Notify(method, nil); err != nil {
			s.logger.Warn("failed to send list_changed", "method", method, "error", err)
		}
	}
}

// Connect establishes the transport and starts the reader. A serving
// session is ready after Connect; a client continues with Initialize.
func (s *Session) Connect() error {
	return s.peer.start()
}

// State returns the session lifecycle state.
func (s *Session) State() State {
	return s.peer.currentState()
}

// Initialize runs the client side of the handshake: it sends initialize,
// verifies the negotiated protocol version, records the server info, and
// confirms with notifications/initialized.
func (s *Session) Initialize(ctx context.Context) (*InitializeResult, error) {
	if st := s.State(); st != StateConnecting {
		return nil, fmt.Errorf("mcp: initialize in state %s", st)
	}
	s.peer.setState(StateHandshaking)

	params := mustMarshal(&InitializeParams{
		ProtocolVersion: s.opts.ProtocolVersion,
		Capabilities:    s.opts.Capabilities,
		ClientInfo:      s.opts.Implementation,
	})
	raw, err := s.peer.call(ctx, MethodInitialize, params, s.opts.DefaultTimeout)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("mcp: initialize: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.Close()
		return nil, fmt.Errorf("mcp: initialize: malformed result: %w", err)
	}
	if !IsSupportedProtocolVersion(result.ProtocolVersion) {
		s.Close()
		return nil, fmt.Errorf("mcp: initialize: unsupported protocol version %q", result.ProtocolVersion)
	}

	s.mu.Lock()
	s.serverInfo = &result
	s.negotiated = result.ProtocolVersion
	s.mu.Unlock()

	if err := s.peer.notify(NotificationInitialized, nil); err != nil {
		s.Close()
		return nil, fmt.Errorf("mcp: initialize: confirm: %w", err)
	}
	s.peer.setState(StateInitialized)
	s.logger.Info("session initialized",
		"protocol_version", result.ProtocolVersion,
		"server", result.ServerInfo.Name,
	)
	return &result, nil
}

// Call sends an outbound request and awaits its result. The default
// request timeout applies unless ctx carries an earlier deadline.
// Cancelling ctx retires the call locally and emits
// notifications/cancelled to the peer.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	timeout := s.opts.DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	return s.peer.call(ctx, method, raw, timeout)
}

// Notify sends a fire-and-forget notification.
func (s *Session) Notify(method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return s.peer.notify(method, raw)
}

// Ping round-trips a ping request.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.Call(ctx, MethodPing, nil)
	return err
}

// Close cancels every pending request, closes the transport and moves the
// session to Closed. The drain is synchronous. Idempotent.
func (s *Session) Close() error {
	s.peer.close()
	s.baseCancel()
	return nil
}

// Tools returns the tool registry.
func (s *Session) Tools() *ToolRegistry { return s.tools }

// Resources returns the resource registry.
func (s *Session) Resources() *ResourceRegistry { return s.resources }

// Prompts returns the prompt registry.
func (s *Session) Prompts() *PromptRegistry { return s.prompts }

// RegisterTool adds a tool to the registry.
func (s *Session) RegisterTool(t Tool) error { return s.tools.Register(t) }

// RegisterResource adds a resource to the registry.
func (s *Session) RegisterResource(r Resource) error { return s.resources.Register(r) }

// RegisterPrompt adds a prompt to the registry.
func (s *Session) RegisterPrompt(p Prompt) error { return s.prompts.Register(p) }

// SetRequestHandler registers a handler for a peer-initiated method, such
// as sampling/createMessage or roots/list on the client side.
func (s *Session) SetRequestHandler(method string, fn RequestHandler) {
	s.peer.setRequestHandler(method, fn)
}

// SetNotificationHandler registers a handler for a peer notification.
func (s *Session) SetNotificationHandler(method string, fn NotificationHandler) {
	s.peer.setNotificationHandler(method, fn)
}

// ServerInfo returns the initialize result recorded by a client-side
// handshake, or nil before Initialize completes.
func (s *Session) ServerInfo() *InitializeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// ClientInfo returns the peer's implementation recorded by a server-side
// handshake, or nil before a client initialized.
func (s *Session) ClientInfo() *Implementation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// ProtocolVersion returns the negotiated protocol version, or "" before
// the handshake completes.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

// handleInitialized finishes the server side of the handshake.
func (s *Session) handleInitialized() {
	if st := s.State(); st != StateHandshaking {
		s.logger.Debug("ignoring initialized notification", "state", st.String())
		return
	}
	s.peer.setState(StateInitialized)
	s.logger.Info("peer initialized", "protocol_version", s.ProtocolVersion())
}

// handleBuiltin serves the compile-time-known method table: the handshake
// pair, ping, and the registry operations. It reports handled=false for
// methods belonging to the user handler map.
func (s *Session) handleBuiltin(rc *RequestContext, method string, params json.RawMessage) (result any, handled bool, err error) {
	switch method {
	case MethodPing:
		return struct{}{}, true, nil

	case MethodInitialize:
		res, err := s.handleInitializeRequest(params)
		return res, true, err

	case MethodToolsList:
		var lp ListParams
		if err := unmarshalParams(params, &lp); err != nil {
			return nil, true, err
		}
		tools, next, err := s.tools.List(lp.Cursor)
		if err != nil {
			return nil, true, err
		}
		return &struct {
			Tools      []Tool `json:"tools"`
			NextCursor string `json:"nextCursor,omitempty"`
		}{Tools: tools, NextCursor: next}, true, nil

	case MethodToolsCall:
		var cp CallToolParams
		if err := unmarshalParams(params, &cp); err != nil {
			return nil, true, err
		}
		res, err := s.tools.Call(rc, cp.Name, cp.Arguments)
		return res, true, err

	case MethodResourcesList:
		var lp ListParams
		if err := unmarshalParams(params, &lp); err != nil {
			return nil, true, err
		}
		resources, next, err := s.resources.List(lp.Cursor)
		if err != nil {
			return nil, true, err
		}
		return &struct {
			Resources  []Resource `json:"resources"`
			NextCursor string     `json:"nextCursor,omitempty"`
		}{Resources: resources, NextCursor: next}, true, nil

	case MethodResourcesRead:
		var rp ReadResourceParams
		if err := unmarshalParams(params, &rp); err != nil {
			return nil, true, err
		}
		res, err := s.resources.Read(rc, rp.URI)
		return res, true, err

	case MethodPromptsList:
		var lp ListParams
		if err := unmarshalParams(params, &lp); err != nil {
			return nil, true, err
		}
		prompts, next, err := s.prompts.List(lp.Cursor)
		if err != nil {
			return nil, true, err
		}
		return &struct {
			Prompts    []Prompt `json:"prompts"`
			NextCursor string   `json:"nextCursor,omitempty"`
		}{Prompts: prompts, NextCursor: next}, true, nil

	case MethodPromptsGet:
		var gp GetPromptParams
		if err := unmarshalParams(params, &gp); err != nil {
			return nil, true, err
		}
		res, err := s.prompts.Get(rc, gp.Name, gp.Arguments)
		return res, true, err

	case MethodComplete:
		var cp CompleteParams
		if err := unmarshalParams(params, &cp); err != nil {
			return nil, true, err
		}
		var values []string
		switch cp.Ref.Type {
		case "ref/prompt":
			values = s.prompts.Complete(cp.Ref.Name, cp.Argument)
		case "ref/resource":
			values = s.resources.Complete(cp.Ref.URI, cp.Argument)
		case "ref/tool":
			values = s.tools.Complete(cp.Ref.Name, cp.Argument)
		default:
			return nil, true, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "unknown completion ref type %q", cp.Ref.Type)
		}
		if values == nil {
			values = []string{}
		}
		return &CompleteResult{Completion: CompletionValues{Values: values, Total: len(values)}}, true, nil
	}

	return nil, false, nil
}

// handleInitializeRequest serves a peer-initiated initialize: negotiate
// the protocol version, record the client info, and advertise this side's
// capabilities.
func (s *Session) handleInitializeRequest(params json.RawMessage) (*InitializeResult, error) {
	var ip InitializeParams
	if err := unmarshalParams(params, &ip); err != nil {
		return nil, err
	}

	version := NegotiateProtocolVersion(ip.ProtocolVersion)

	s.mu.Lock()
	s.clientInfo = &ip.ClientInfo
	s.negotiated = version
	s.mu.Unlock()

	if st := s.State(); st == StateConnecting {
		s.peer.setState(StateHandshaking)
	}

	caps := s.opts.ServerCapabilities
	if caps == nil {
		caps = &ServerCapabilities{
			Tools:     &ListChangedCapability{ListChanged: true},
			Resources: &ResourcesCapability{ListChanged: true},
			Prompts:   &ListChangedCapability{ListChanged: true},
		}
	}

	s.logger.Info("client initializing",
		"client", ip.ClientInfo.Name,
		"requested_version", ip.ProtocolVersion,
		"negotiated_version", version,
	)
	return &InitializeResult{
		ProtocolVersion: version,
		Capabilities:    *caps,
		ServerInfo:      s.opts.Implementation,
		Instructions:    s.opts.Instructions,
	}, nil
}

// marshalParams renders user params: nil stays absent, raw messages pass
// through, everything else marshals.
func marshalParams(params any) (json.RawMessage, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("mcp: marshal params: %w", err)
		}
		return data, nil
	}
}

// unmarshalParams decodes request params, mapping malformed payloads to
// invalid-params.
func unmarshalParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "malformed params: %v", err)
	}
	return nil
}
