package gate

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/tinyland-inc/clawgate/pkg/policy"
)

// Gate decision outcomes, counted per direction.
const (
	OutcomeReceived         = "received"
	OutcomeDuplicate        = "duplicate"
	OutcomeNotAllowed       = "sender_not_allowed"
	OutcomeHeuristicBlocked = "heuristic_blocked"
	OutcomeSemanticBlocked  = "semantic_blocked"
	OutcomeAccepted         = "accepted"
	OutcomeDelivered        = "delivered"
	OutcomeRejected         = "rejected"
	OutcomeError            = "error"
)

// Metrics aggregates gate decision counts in memory.
type Metrics struct {
	mu     sync.RWMutex
	counts map[policy.Direction]map[string]int64
}

// NewMetrics creates an empty metrics store.
func NewMetrics() *Metrics {
	return &Metrics{counts: make(map[policy.Direction]map[string]int64)}
}

// Record increments one outcome counter. Nil receivers are tolerated so
// metrics stay optional in tests.
func (m *Metrics) Record(dir policy.Direction, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byOutcome, ok := m.counts[dir]
	if !ok {
		byOutcome = make(map[string]int64)
		m.counts[dir] = byOutcome
	}
	byOutcome[outcome]++
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]int64, len(m.counts))
	for dir, byOutcome := range m.counts {
		cp := make(map[string]int64, len(byOutcome))
		for k, v := range byOutcome {
			cp[k] = v
		}
		out[string(dir)] = cp
	}
	return out
}

// Handler serves the counters as JSON.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}
