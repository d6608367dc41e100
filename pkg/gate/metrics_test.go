package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tinyland-inc/clawgate/pkg/policy"
)

func TestMetricsRecordAndSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Record(policy.DirectionInbound, OutcomeReceived)
	m.Record(policy.DirectionInbound, OutcomeReceived)
	m.Record(policy.DirectionInbound, OutcomeAccepted)
	m.Record(policy.DirectionOutbound, OutcomeDelivered)

	snap := m.Snapshot()
	if snap["inbound"][OutcomeReceived] != 2 {
		t.Errorf("inbound received = %d, want 2", snap["inbound"][OutcomeReceived])
	}
	if snap["outbound"][OutcomeDelivered] != 1 {
		t.Errorf("outbound delivered = %d, want 1", snap["outbound"][OutcomeDelivered])
	}
}

func TestMetricsConcurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record(policy.DirectionInbound, OutcomeReceived)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot()["inbound"][OutcomeReceived]; got != 1600 {
		t.Errorf("received = %d, want 1600", got)
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.Record(policy.DirectionInbound, OutcomeReceived) // must not panic
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.Record(policy.DirectionInbound, OutcomeDuplicate)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var snap map[string]map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	if snap["inbound"][OutcomeDuplicate] != 1 {
		t.Errorf("unexpected snapshot: %v", snap)
	}
}
