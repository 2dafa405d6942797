package async

import "sync"

// CancelSource requests cancellation on its associated tokens. A source is
// unique to one operation; do not copy it after first use.
type CancelSource struct {
	mu        sync.Mutex
	done      chan struct{}
	cancelled bool
	reason    string
}

// NewCancelSource creates a source with no cancellation requested.
func NewCancelSource() *CancelSource {
	return &CancelSource{done: make(chan struct{})}
}

// Cancel requests cancellation with an optional reason. Signaling is
// idempotent and monotonic: the first call wins, later calls are no-ops.
func (s *CancelSource) Cancel(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.reason = reason
	close(s.done)
}

// Token returns an observer for this source. Tokens are cheap to copy.
func (s *CancelSource) Token() CancelToken {
	return CancelToken{src: s}
}

// CancelToken observes a CancelSource. The zero token can never be
// cancelled, which makes cancellation support optional for callers.
type CancelToken struct {
	src *CancelSource
}

// IsCancelled polls the token.
func (t CancelToken) IsCancelled() bool {
	if t.src == nil {
		return false
	}
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	return t.src.cancelled
}

// Reason returns the reason passed to Cancel, or "" if not cancelled.
func (t CancelToken) Reason() string {
	if t.src == nil {
		return ""
	}
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	return t.src.reason
}

// Done returns a channel closed when cancellation is requested. For the
// zero token it returns nil, which blocks forever in a select.
func (t CancelToken) Done() <-chan struct{} {
	if t.src == nil {
		return nil
	}
	return t.src.done
}
