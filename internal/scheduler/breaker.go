package scheduler

import (
	"sync"
	"time"
)

// breaker suspends probing of a single domain after repeated inconclusive
// outcomes. While open, probes are answered Unknown immediately instead of
// tying up a connection against a server that is blocking us. After the
// cooldown one probe is let through; another failure re-opens at once,
// a conclusive answer closes the circuit.
type breaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	cooldown  time.Duration
	openUntil time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a probe may proceed.
func (b *breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !now.Before(b.openUntil)
}

// RecordFailure counts an inconclusive outcome. Returns true on the
// closed→open transition. Failures are not reset when the circuit opens,
// so a failed half-open trial re-opens immediately.
func (b *breaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures < b.threshold {
		return false
	}
	wasOpen := now.Before(b.openUntil)
	b.openUntil = now.Add(b.cooldown)
	return !wasOpen
}

// RecordSuccess closes the circuit after any conclusive probe.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
