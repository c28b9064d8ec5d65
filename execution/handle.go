package execution

import "sync"

// Handle tracks one conflict's passage through the scheduler. Enqueueing an
// already-in-flight conflict returns the existing handle, so callers can
// always wait on Done regardless of who enqueued first.
type Handle struct {
	conflictID string
	done       chan struct{}
	once       sync.Once

	mu       sync.RWMutex
	err      error
	attempts int
}

func newHandle(conflictID string) *Handle {
	return &Handle{
		conflictID: conflictID,
		done:       make(chan struct{}),
	}
}

// CompletedHandle returns an already-finished handle. Used when negotiation
// is requested for a conflict that is already terminal.
func CompletedHandle(conflictID string) *Handle {
	h := newHandle(conflictID)
	h.complete(0, nil)
	return h
}

// ConflictID returns the conflict this handle tracks.
func (h *Handle) ConflictID() string { return h.conflictID }

// Done is closed once the conflict leaves the scheduler: resolved,
// escalated, skipped, or failed after retry exhaustion.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the terminal error, if any. Only meaningful after Done.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Attempts returns how many attempts ran. Only meaningful after Done.
func (h *Handle) Attempts() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attempts
}

func (h *Handle) complete(attempts int, err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.attempts = attempts
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}
