package transport

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe bytes.Buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStreamTransportDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var out syncBuffer

	tr := NewStreamTransport(in, &out, nil, discardLogger())

	var mu sync.Mutex
	var got []string
	errCh := make(chan error, 1)
	tr.SetOnMessage(func(data []byte) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})
	tr.SetOnError(func(err error) { errCh <- err })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// EOF arrives after both lines; the transport must surface an error
	// and mark itself disconnected.
	select {
	case err := <-errCh:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected EOF-based error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no transport error after EOF")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("delivered %d messages, want 2", len(got))
	}
	if !strings.Contains(got[0], `"ping"`) {
		t.Errorf("first message = %q", got[0])
	}

	if tr.IsConnected() {
		t.Error("transport still connected after EOF")
	}
	if err := tr.Send([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after EOF = %v, want ErrNotConnected", err)
	}
}

func TestStreamTransportSendFraming(t *testing.T) {
	// A pipe keeps the reader blocked so the transport stays connected
	// while we exercise Send.
	pr, pw := io.Pipe()
	defer pw.Close()

	var out syncBuffer
	tr := NewStreamTransport(pr, &out, pr, discardLogger())
	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() { _ = tr.Disconnect() }()

	msg := []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	if err := tr.Send(msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	want := string(msg) + "\n"
	if out.String() != want {
		t.Errorf("wire = %q, want %q", out.String(), want)
	}
}

func TestStreamTransportRejectsRawNewline(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out syncBuffer
	tr := NewStreamTransport(pr, &out, pr, discardLogger())
	_ = tr.Connect()
	defer func() { _ = tr.Disconnect() }()

	if err := tr.Send([]byte("{\n}")); err == nil {
		t.Error("Send accepted a message with a raw newline")
	}
}

func TestStreamTransportSkipsBlankLines(t *testing.T) {
	in := strings.NewReader("\n\n" + `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n\n")
	tr := NewStreamTransport(in, io.Discard, nil, discardLogger())

	count := make(chan struct{}, 8)
	tr.SetOnMessage(func([]byte) { count <- struct{}{} })
	done := make(chan struct{})
	tr.SetOnError(func(error) { close(done) })

	_ = tr.Connect()
	<-done

	if n := len(count); n != 1 {
		t.Errorf("delivered %d messages, want 1", n)
	}
}
