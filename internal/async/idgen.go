// Package async provides the coordination primitives underneath the peer
// engine: request-id allocation, deadline tracking and cooperative
// cancellation.
package async

import "sync/atomic"

// IDAllocator hands out monotonically increasing request ids. Allocation is
// lock-free; relaxed ordering is fine because only uniqueness matters.
// IDs start at 1 — 0 is reserved as a sentinel.
type IDAllocator struct {
	next atomic.Int64
}

// Next returns the next unique id.
func (a *IDAllocator) Next() int64 {
	return a.next.Add(1)
}
