package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// StreamTransport frames messages as newline-delimited JSON over a byte
// stream. A background reader accumulates input until LF and delivers each
// line to the message callback. At end-of-stream the transport marks itself
// disconnected and surfaces a transport error; a later Send fails fast.
type StreamTransport struct {
	in     io.Reader
	out    io.Writer
	closer io.Closer // optional; closed on Disconnect
	logger *slog.Logger

	onMessage MessageHandler
	onError   ErrorHandler

	// sendMu serializes writers so concurrent producers cannot interleave
	// bytes within a frame.
	sendMu sync.Mutex

	mu        sync.Mutex
	connected bool
	done      chan struct{}
}

// NewStreamTransport creates a transport over the given reader/writer pair.
// closer, when non-nil, is closed on Disconnect (used to unblock the reader).
func NewStreamTransport(in io.Reader, out io.Writer, closer io.Closer, logger *slog.Logger) *StreamTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamTransport{in: in, out: out, closer: closer, logger: logger}
}

// NewStdioTransport creates a transport over the process's stdin/stdout.
func NewStdioTransport(logger *slog.Logger) *StreamTransport {
	return NewStreamTransport(os.Stdin, os.Stdout, nil, logger)
}

// SetOnMessage registers the inbound message callback.
func (t *StreamTransport) SetOnMessage(fn MessageHandler) { t.onMessage = fn }

// SetOnError registers the error callback.
func (t *StreamTransport) SetOnError(fn ErrorHandler) { t.onError = fn }

// Connect starts the background reader.
func (t *StreamTransport) Connect() error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = true
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.readLoop(done)
	return nil
}

// readLoop consumes the input stream until EOF or error.
func (t *StreamTransport) readLoop(done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(t.in)
	// MCP messages can be large; grow the scanner buffer well past the
	// default 64KB token limit.
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if t.onMessage != nil {
			// Copy: the scanner reuses its buffer on the next Scan.
			t.onMessage(append([]byte(nil), line...))
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()

	if wasConnected {
		t.logger.Debug("stream transport closed", "error", err)
		if t.onError != nil {
			t.onError(fmt.Errorf("transport: read: %w", err))
		}
	}
}

// Send writes one message followed by the LF delimiter. The message must
// not contain a raw LF outside string escapes.
func (t *StreamTransport) Send(data []byte) error {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if bytes.IndexByte(data, '\n') >= 0 {
		return fmt.Errorf("transport: message contains raw newline")
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if _, err := t.out.Write(data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	if _, err := t.out.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("transport: write delimiter: %w", err)
	}
	return nil
}

// Disconnect marks the transport closed. When a closer was supplied it is
// closed and Disconnect waits for the reader to exit; without one (as for
// stdio) the reader keeps blocking on the input stream until it ends, and
// lines it reads meanwhile are still delivered to the message callback.
func (t *StreamTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	done := t.done
	t.mu.Unlock()

	var err error
	if t.closer != nil {
		err = t.closer.Close()
	}
	if done != nil && t.closer != nil {
		// Closing the underlying stream unblocks the reader; wait for it
		// so callbacks stop before Disconnect returns.
		<-done
	}
	return err
}

// IsConnected reports whether the transport is usable.
func (t *StreamTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
