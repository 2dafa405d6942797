package async

import (
	"sync"
	"time"

	"github.com/mcpwire/mcpwire/pkg/jsonrpc"
)

// TimeoutCallback is invoked when a tracked request's deadline passes.
type TimeoutCallback func(id jsonrpc.ID)

type deadlineEntry struct {
	deadline time.Time
	callback TimeoutCallback
}

// DeadlineTracker maps request ids to deadlines. time.Time values carry
// Go's monotonic reading, so wall-clock adjustments do not affect expiry.
//
// Expired callbacks are invoked after the internal lock is released, so a
// callback may safely re-enter the tracker. A Cancel racing with Tick can
// land after the callback has been extracted; in that case the callback
// still runs — at most one firing per Set either way.
type DeadlineTracker struct {
	mu        sync.Mutex
	deadlines map[jsonrpc.ID]deadlineEntry
}

// NewDeadlineTracker creates an empty tracker.
func NewDeadlineTracker() *DeadlineTracker {
	return &DeadlineTracker{deadlines: make(map[jsonrpc.ID]deadlineEntry)}
}

// Set registers a deadline for id, replacing any existing one.
func (d *DeadlineTracker) Set(id jsonrpc.ID, timeout time.Duration, cb TimeoutCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadlines[id] = deadlineEntry{
		deadline: time.Now().Add(timeout),
		callback: cb,
	}
}

// Cancel removes the deadline for id. No-op if absent.
func (d *DeadlineTracker) Cancel(id jsonrpc.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.deadlines, id)
}

// Tick removes every entry whose deadline is at or before now, invokes its
// callback, and returns the expired ids.
func (d *DeadlineTracker) Tick(now time.Time) []jsonrpc.ID {
	d.mu.Lock()
	var expired []jsonrpc.ID
	var callbacks []TimeoutCallback
	for id, entry := range d.deadlines {
		if !entry.deadline.After(now) {
			expired = append(expired, id)
			callbacks = append(callbacks, entry.callback)
			delete(d.deadlines, id)
		}
	}
	d.mu.Unlock()

	for i, cb := range callbacks {
		if cb != nil {
			cb(expired[i])
		}
	}
	return expired
}

// Pending returns the number of tracked deadlines.
func (d *DeadlineTracker) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deadlines)
}
