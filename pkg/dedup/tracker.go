// Package dedup suppresses reprocessing of redelivered messages.
//
// The registry retries webhook deliveries, so the same message_id can arrive
// more than once. The tracker remembers ids for a TTL and sweeps expired
// entries in the background. State is process-local: a restart implies
// at-least-once redelivery, which downstream consumers must tolerate.
package dedup

import (
	"sync"
	"time"

	"github.com/tinyland-inc/clawgate/pkg/logger"
)

const (
	// DefaultTTL is how long a message id is remembered.
	DefaultTTL = time.Hour
	// DefaultSweepInterval is how often expired entries are removed.
	DefaultSweepInterval = 5 * time.Minute
)

// Tracker is a process-local set of recently seen message ids.
// All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	sweep   time.Duration
	now     func() time.Time
	done    chan struct{}
	started bool
	stopped bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker. Zero ttl or sweep interval fall back to the
// defaults.
func NewTracker(ttl, sweep time.Duration, opts ...Option) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	t := &Tracker{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		sweep: sweep,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Has reports whether id was marked within the TTL. An expired entry is
// treated as absent and removed eagerly, so correctness never depends on
// sweep timing.
func (t *Tracker) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.seen[id]
	if !ok {
		return false
	}
	if t.now().Sub(at) > t.ttl {
		delete(t.seen, id)
		return false
	}
	return true
}

// Mark records id as seen now.
func (t *Tracker) Mark(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[id] = t.now()
}

// Len returns the number of tracked entries, including not-yet-swept ones.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// Start launches the background sweep. The goroutine exits on Stop and is
// best-effort housekeeping, never a liveness requirement.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := t.Sweep()
				if removed > 0 {
					logger.DebugCF("dedup", "Swept expired entries", map[string]any{
						"removed": removed,
					})
				}
			case <-t.done:
				return
			}
		}
	}()
}

// Stop terminates the background sweep. Safe to call more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}

// Sweep removes entries older than the TTL and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for id, at := range t.seen {
		if now.Sub(at) > t.ttl {
			delete(t.seen, id)
			removed++
		}
	}
	return removed
}
