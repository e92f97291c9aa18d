package realtime

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// typingTimer clears the remote typing flag after a quiet period. Every
// arm restarts the countdown. Callers serialize access.
type typingTimer struct {
	clock   clock.Clock
	timeout time.Duration
	timer   *clock.Timer
	gen     uint64
}

// arm stops any pending countdown and starts a new one. fire receives the
// generation it was armed with so a callback that lost a race with a later
// arm or stop can tell it is stale.
func (t *typingTimer) arm(fire func(gen uint64)) {
	t.stop()
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.timeout, func() { fire(gen) })
}

func (t *typingTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

func (t *typingTimer) current(gen uint64) bool {
	return t.timer != nil && gen == t.gen
}

// Throttle admits at most one event per interval, measured on its clock.
// The first call is always admitted.
type Throttle struct {
	clock    clock.Clock
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	used bool
}

// NewThrottle creates a Throttle. A nil clock means the wall clock.
func NewThrottle(c clock.Clock, interval time.Duration) *Throttle {
	if c == nil {
		c = clock.New()
	}
	return &Throttle{clock: c, interval: interval}
}

// Allow reports whether an event may go out now and, if so, records it.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.used && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	t.used = true
	return true
}
