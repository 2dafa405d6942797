// Package transport provides the framed message pipes an MCP session runs
// over: a newline-delimited byte-stream transport (stdio), an HTTP/SSE
// session transport, and an in-memory pair for tests.
//
// A transport owns framing. Callers hand it one complete JSON message worth
// of bytes per Send and receive whole messages through the OnMessage
// callback. Errors surface out-of-band through the OnError callback.
package transport

import "errors"

// ErrNotConnected is returned by Send on a transport that is not connected.
var ErrNotConnected = errors.New("transport: not connected")

// MessageHandler receives one complete inbound message.
type MessageHandler func(data []byte)

// ErrorHandler receives out-of-band transport errors.
type ErrorHandler func(err error)

// Transport is a framed duplex message pipe.
//
// SetOnMessage and SetOnError must be called before Connect; the callbacks
// may be invoked from the transport's reader goroutine until Disconnect
// returns.
type Transport interface {
	// Connect establishes the pipe and starts inbound delivery.
	Connect() error

	// Send queues one complete message for the peer. A failure to deliver
	// is reported through the error callback; Send's own error covers only
	// immediate refusal (for example, a closed transport).
	Send(data []byte) error

	// SetOnMessage registers the inbound message callback.
	SetOnMessage(fn MessageHandler)

	// SetOnError registers the out-of-band error callback.
	SetOnError(fn ErrorHandler)

	// Disconnect tears the pipe down. Idempotent.
	Disconnect() error

	// IsConnected reports whether the transport is usable.
	IsConnected() bool
}
