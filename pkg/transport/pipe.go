package transport

import (
	"sync"
)

// Pipe returns two connected in-memory transports: what one side sends the
// other receives, in order. Used for tests and in-process client/server
// pairs.
func Pipe() (*PipeTransport, *PipeTransport) {
	a := newPipeTransport()
	b := newPipeTransport()
	a.peer = b
	b.peer = a
	return a, b
}

// PipeTransport is one end of an in-memory transport pair. Each end runs a
// delivery goroutine so messages arrive on a reader goroutine in emission
// order, like a real transport.
type PipeTransport struct {
	peer *PipeTransport

	inbound chan []byte

	mu        sync.Mutex
	connected bool
	closed    bool
	onMessage MessageHandler
	onError   ErrorHandler
	done      chan struct{}
}

func newPipeTransport() *PipeTransport {
	return &PipeTransport{inbound: make(chan []byte, 128)}
}

// SetOnMessage registers the inbound message callback.
func (t *PipeTransport) SetOnMessage(fn MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

// SetOnError registers the error callback.
func (t *PipeTransport) SetOnError(fn ErrorHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = fn
}

// Connect opens this end and starts its delivery goroutine.
func (t *PipeTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected || t.closed {
		return nil
	}
	t.connected = true
	t.done = make(chan struct{})
	go t.deliverLoop(t.done)
	return nil
}

func (t *PipeTransport) deliverLoop(done chan struct{}) {
	for {
		select {
		case msg := <-t.inbound:
			t.mu.Lock()
			fn := t.onMessage
			t.mu.Unlock()
			if fn != nil {
				fn(msg)
			}
		case <-done:
			return
		}
	}
}

// Send delivers the message to the other end.
func (t *PipeTransport) Send(data []byte) error {
	t.mu.Lock()
	connected := t.connected
	peer := t.peer
	t.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	peer.mu.Lock()
	peerConnected := peer.connected
	peer.mu.Unlock()
	if !peerConnected {
		return nil // messages to a closed end are dropped
	}

	peer.inbound <- append([]byte(nil), data...)
	return nil
}

// Disconnect closes this end and reports a transport error to the peer.
func (t *PipeTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	t.closed = true
	close(t.done)
	peer := t.peer
	t.mu.Unlock()

	peer.mu.Lock()
	peerConnected := peer.connected
	fn := peer.onError
	peer.mu.Unlock()
	if peerConnected && fn != nil {
		fn(ErrNotConnected)
	}
	return nil
}

// IsConnected reports whether this end is open.
func (t *PipeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
