package media

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// CandidateBuffer holds remote ICE candidates that arrive before the local
// session has a remote description. Applying a candidate before the remote
// description is set is invalid, so early arrivals are queued and replayed,
// in arrival order, once Flush is called.
type CandidateBuffer struct {
	mu      sync.Mutex
	apply   func(webrtc.ICECandidateInit) error
	ready   bool
	pending []webrtc.ICECandidateInit
}

// NewCandidateBuffer creates a buffer that applies candidates via apply.
func NewCandidateBuffer(apply func(webrtc.ICECandidateInit) error) *CandidateBuffer {
	return &CandidateBuffer{apply: apply}
}

// Offer applies the candidate immediately if a remote description has been
// set, otherwise appends it to the queue.
func (b *CandidateBuffer) Offer(c webrtc.ICECandidateInit) error {
	b.mu.Lock()
	if !b.ready {
		b.pending = append(b.pending, c)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	return b.apply(c)
}

// Flush marks the remote description as set and applies every queued
// candidate in arrival order. Failures do not stop the replay of later
// candidates. Idempotent when the queue is empty.
func (b *CandidateBuffer) Flush() error {
	b.mu.Lock()
	b.ready = true
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	var errs []error
	for _, c := range pending {
		if err := b.apply(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports how many candidates are currently queued.
func (b *CandidateBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
