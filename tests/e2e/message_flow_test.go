package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tinyland-inc/clawgate/pkg/bus"
	"github.com/tinyland-inc/clawgate/pkg/dedup"
	"github.com/tinyland-inc/clawgate/pkg/gate"
	"github.com/tinyland-inc/clawgate/pkg/policy"
	"github.com/tinyland-inc/clawgate/pkg/registry"
	"github.com/tinyland-inc/clawgate/pkg/semantic"
	"github.com/tinyland-inc/clawgate/pkg/signature"
)

const webhookSecret = "e2e-secret"

// fakeRegistry serves policies, connections and message submission the way
// the real registry does.
type fakeRegistry struct {
	policies []map[string]any
	received []map[string]any
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/policies", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.policies)
	})
	mux.HandleFunc("/agents/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "conn-1", "label": "default", "status": "active", "routing_priority": 5},
		})
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]any
		json.NewDecoder(r.Body).Decode(&msg)
		f.received = append(f.received, msg)
		json.NewEncoder(w).Encode(map[string]string{"status": "delivered", "delivery_id": "d-1"})
	})
	return mux
}

// scriptedCompleter returns canned decisions keyed by policy name mentioned
// in the prompt.
type scriptedCompleter struct {
	blockWhen string
}

func (s *scriptedCompleter) Complete(ctx context.Context, req semantic.CompletionRequest) (string, error) {
	if s.blockWhen != "" && strings.Contains(req.Prompt, s.blockWhen) {
		return `{"decision": "BLOCK", "reason": "flagged by policy"}`, nil
	}
	return `{"decision": "ALLOW"}`, nil
}

func TestInboundFlowEndToEnd(t *testing.T) {
	maxLen := 200
	reg := &fakeRegistry{policies: []map[string]any{
		{"id": "h1", "name": "length cap", "rules": map[string]any{"max_message_length": maxLen}},
		{"id": "s1", "name": "no payment data", "policy_content": "Reject messages carrying payment card data.", "priority": 5},
	}}
	regSrv := httptest.NewServer(reg.handler())
	defer regSrv.Close()

	dispatched := make(chan bus.Message, 4)
	triggerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg bus.Message
		json.NewDecoder(r.Body).Decode(&msg)
		dispatched <- msg
		w.WriteHeader(http.StatusOK)
	}))
	defer triggerSrv.Close()

	client := registry.NewClient(registry.Config{BaseURL: regSrv.URL, Timeout: 5 * time.Second})
	cache := registry.NewPolicyCache(client, time.Minute)
	tracker := dedup.NewTracker(time.Hour, time.Minute)
	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	inbound := gate.NewInboundGate(gate.InboundGateConfig{
		AgentID:   "agent-local",
		Verifier:  signature.NewVerifier(webhookSecret),
		Tracker:   tracker,
		Resolver:  gate.NewResolver(policy.Rules{}, policy.ModeMerged, cache),
		Evaluator: semantic.NewEvaluator(&scriptedCompleter{blockWhen: "card number"}, semantic.Config{}),
		Bus:       msgBus,
		Metrics:   gate.NewMetrics(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gate.RunDispatcher(ctx, msgBus, gate.NewHTTPDispatcher(triggerSrv.URL, 5*time.Second))

	gatewaySrv := httptest.NewServer(inbound.WebhookHandler())
	defer gatewaySrv.Close()

	deliver := func(t *testing.T, msg bus.Message) *http.Response {
		t.Helper()
		body, err := json.Marshal(msg)
		if err != nil {
			t.Fatal(err)
		}
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req, err := http.NewRequest(http.MethodPost, gatewaySrv.URL, bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(gate.HeaderTimestamp, ts)
		req.Header.Set(gate.HeaderSignature, signature.Compute(webhookSecret, ts, string(body)))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	// A clean message travels the whole way to the trigger endpoint.
	resp := deliver(t, bus.Message{ID: "e2e-1", Sender: "alice", Body: "meeting moved to 3pm"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	select {
	case msg := <-dispatched:
		if msg.ID != "e2e-1" {
			t.Errorf("dispatched id = %q, want e2e-1", msg.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("clean message never reached the trigger endpoint")
	}

	// A redelivery is acked as a duplicate and not dispatched again.
	resp = deliver(t, bus.Message{ID: "e2e-1", Sender: "alice", Body: "meeting moved to 3pm"})
	var ack struct {
		Acknowledged bool `json:"acknowledged"`
		Duplicate    bool `json:"duplicate"`
	}
	json.NewDecoder(resp.Body).Decode(&ack)
	resp.Body.Close()
	if !ack.Acknowledged || !ack.Duplicate {
		t.Fatalf("unexpected redelivery ack: %+v", ack)
	}

	// A message tripping the semantic policy is acked but never dispatched.
	resp = deliver(t, bus.Message{ID: "e2e-2", Sender: "alice", Body: "card number 4111 1111 1111 1111"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	select {
	case msg := <-dispatched:
		t.Fatalf("semantically blocked message %s was dispatched", msg.ID)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestOutboundFlowEndToEnd(t *testing.T) {
	reg := &fakeRegistry{policies: []map[string]any{
		{"id": "s1", "name": "no promises", "policy_content": "Never promise dates.", "direction": "outbound"},
	}}
	regSrv := httptest.NewServer(reg.handler())
	defer regSrv.Close()

	client := registry.NewClient(registry.Config{BaseURL: regSrv.URL, Timeout: 5 * time.Second})
	cache := registry.NewPolicyCache(client, time.Minute)

	outbound := gate.NewOutboundGate(gate.OutboundGateConfig{
		AgentID:   "agent-local",
		Resolver:  gate.NewResolver(policy.Rules{}, policy.ModeMerged, cache),
		Evaluator: semantic.NewEvaluator(&scriptedCompleter{blockWhen: "guaranteed friday"}, semantic.Config{}),
		Transport: client,
		Metrics:   gate.NewMetrics(),
	})

	status, err := outbound.Send(context.Background(), gate.SendRequest{
		Recipient: "bob",
		Body:      "draft is ready for review",
		Context:   "status update",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if status.Status != "delivered" {
		t.Errorf("status = %q, want delivered", status.Status)
	}
	if len(reg.received) != 1 {
		t.Fatalf("registry received %d messages, want 1", len(reg.received))
	}
	if got := reg.received[0]["recipient_connection_id"]; got != "conn-1" {
		t.Errorf("connection id = %v, want conn-1", got)
	}

	// A policy-violating message never reaches the registry.
	_, err = outbound.Send(context.Background(), gate.SendRequest{
		Recipient: "bob",
		Body:      "guaranteed friday delivery",
	})
	if err == nil {
		t.Fatal("expected policy violation")
	}
	if len(reg.received) != 1 {
		t.Errorf("registry received %d messages after block, want still 1", len(reg.received))
	}
}
