package call

import (
	"sync"
	"time"
)

// DefaultRingWindow bounds how long an unanswered invitation may ring.
const DefaultRingWindow = 30 * time.Second

// RingTimer fires a timeout callback once after a fixed window unless stopped
// first. It is single-fire and not restartable; Stop is idempotent and
// guarantees the callback will not run afterwards (cancel-safe even when
// racing with expiry).
type RingTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	fired   bool
	stopped bool
}

// StartRingTimer arms a timer that invokes fn after d, unless Stop wins.
func StartRingTimer(d time.Duration, fn func()) *RingTimer {
	rt := &RingTimer{}
	rt.timer = time.AfterFunc(d, func() {
		rt.mu.Lock()
		if rt.stopped || rt.fired {
			rt.mu.Unlock()
			return
		}
		rt.fired = true
		rt.mu.Unlock()
		fn()
	})
	return rt
}

// Stop cancels the timer. After Stop returns, fn will not be invoked unless
// it had already started.
func (rt *RingTimer) Stop() {
	rt.mu.Lock()
	rt.stopped = true
	rt.mu.Unlock()
	rt.timer.Stop()
}

// Fired reports whether the timeout callback ran.
func (rt *RingTimer) Fired() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.fired
}
