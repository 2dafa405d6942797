package async

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

func TestIDAllocatorSequential(t *testing.T) {
	var a IDAllocator
	for want := int64(1); want <= 100; want++ {
		if got := a.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}
}

func TestIDAllocatorUniqueAcrossGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	const workers = 8
	const perWorker = 1000

	var a IDAllocator
	results := make(chan int64, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				results <- a.Next()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, workers*perWorker)
	for id := range results {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("allocated %d unique ids, want %d", len(seen), workers*perWorker)
	}
}

func TestDeadlineFiresOnce(t *testing.T) {
	d := NewDeadlineTracker()
	id := jsonrpc.Int64ID(1)

	fired := 0
	d.Set(id, 10*time.Millisecond, func(jsonrpc.ID) { fired++ })

	// Before the deadline nothing expires.
	if expired := d.Tick(time.Now()); len(expired) != 0 {
		t.Fatalf("expired early: %v", expired)
	}

	time.Sleep(20 * time.Millisecond)
	expired := d.Tick(time.Now())
	if len(expired) != 1 || expired[0] != id {
		t.Fatalf("Tick returned %v, want [%v]", expired, id)
	}
	if fired != 1 {
		t.Errorf("callback fired %d times, want 1", fired)
	}

	// A second tick must not fire again.
	d.Tick(time.Now().Add(time.Hour))
	if fired != 1 {
		t.Errorf("callback fired %d times after second tick, want 1", fired)
	}
}

func TestDeadlineCancelBeforeTick(t *testing.T) {
	d := NewDeadlineTracker()
	id := jsonrpc.Int64ID(2)

	fired := false
	d.Set(id, time.Millisecond, func(jsonrpc.ID) { fired = true })
	d.Cancel(id)

	time.Sleep(5 * time.Millisecond)
	if expired := d.Tick(time.Now()); len(expired) != 0 {
		t.Fatalf("cancelled entry expired: %v", expired)
	}
	if fired {
		t.Error("callback fired after cancel")
	}
}

func TestDeadlineReplace(t *testing.T) {
	d := NewDeadlineTracker()
	id := jsonrpc.Int64ID(3)

	var got string
	d.Set(id, time.Millisecond, func(jsonrpc.ID) { got = "first" })
	d.Set(id, time.Millisecond, func(jsonrpc.ID) { got = "second" })

	time.Sleep(5 * time.Millisecond)
	d.Tick(time.Now())
	if got != "second" {
		t.Errorf("callback = %q, want %q", got, "second")
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

func TestDeadlineCallbackMayReenter(t *testing.T) {
	d := NewDeadlineTracker()
	id := jsonrpc.Int64ID(4)

	// The callback re-enters the tracker; this must not deadlock because
	// callbacks run after the lock is released.
	d.Set(id, time.Millisecond, func(jsonrpc.ID) {
		d.Set(jsonrpc.Int64ID(5), time.Hour, nil)
		d.Cancel(jsonrpc.Int64ID(5))
	})

	time.Sleep(5 * time.Millisecond)
	d.Tick(time.Now())
}

func TestCancelTokenObserves(t *testing.T) {
	src := NewCancelSource()
	tok := src.Token()

	if tok.IsCancelled() {
		t.Fatal("token cancelled before Cancel")
	}

	src.Cancel("user requested")
	if !tok.IsCancelled() {
		t.Fatal("token not cancelled after Cancel")
	}
	if tok.Reason() != "user requested" {
		t.Errorf("Reason() = %q, want %q", tok.Reason(), "user requested")
	}

	select {
	case <-tok.Done():
	default:
		t.Error("Done() channel not closed after Cancel")
	}
}

func TestCancelIdempotent(t *testing.T) {
	src := NewCancelSource()
	src.Cancel("first")
	src.Cancel("second") // must not panic or overwrite

	if got := src.Token().Reason(); got != "first" {
		t.Errorf("Reason() = %q, want %q", got, "first")
	}
}

func TestZeroCancelToken(t *testing.T) {
	var tok CancelToken
	if tok.IsCancelled() {
		t.Error("zero token reports cancelled")
	}
	select {
	case <-tok.Done():
		t.Error("zero token Done() is closed")
	default:
	}
}
