package otp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle limits how often codes may be sent to one phone number.
type Throttle struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	mu      sync.Mutex
	entries map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle allows perMinute sends per phone with the given burst.
// A non-positive perMinute disables throttling.
func NewThrottle(perMinute, burst int) *Throttle {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		idle:    10 * time.Minute,
		entries: make(map[string]*throttleEntry),
	}
}

// Allow reports whether a code may be sent to phone now.
func (t *Throttle) Allow(phone string, now time.Time) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[phone]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[phone] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune forgets phones idle longer than the idle window.
func (t *Throttle) Prune(now time.Time) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	pruned := 0
	for phone, e := range t.entries {
		if now.Sub(e.lastSeen) > t.idle {
			delete(t.entries, phone)
			pruned++
		}
	}
	return pruned
}
