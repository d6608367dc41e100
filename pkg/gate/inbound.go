// Package gate implements the inbound and outbound trust gates: every
// message crossing the agent boundary passes authenticity, deduplication,
// heuristic policy, and semantic policy checks, in that order.
package gate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/tinyland-inc/clawgate/pkg/bus"
	"github.com/tinyland-inc/clawgate/pkg/dedup"
	"github.com/tinyland-inc/clawgate/pkg/logger"
	"github.com/tinyland-inc/clawgate/pkg/policy"
	"github.com/tinyland-inc/clawgate/pkg/semantic"
	"github.com/tinyland-inc/clawgate/pkg/signature"
)

// Webhook headers carrying the delivery signature.
const (
	HeaderSignature = "X-Clawgate-Signature"
	HeaderTimestamp = "X-Clawgate-Timestamp"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// InboundGate screens messages delivered to the local agent.
type InboundGate struct {
	agentID   string
	allowFrom []string
	verifier  *signature.Verifier // nil disables signature checks
	tracker   *dedup.Tracker
	resolver  *Resolver
	evaluator *semantic.Evaluator
	bus       *bus.MessageBus
	metrics   *Metrics
}

// InboundGateConfig wires an InboundGate.
type InboundGateConfig struct {
	AgentID   string
	AllowFrom []string
	Verifier  *signature.Verifier
	Tracker   *dedup.Tracker
	Resolver  *Resolver
	Evaluator *semantic.Evaluator
	Bus       *bus.MessageBus
	Metrics   *Metrics
}

func NewInboundGate(cfg InboundGateConfig) *InboundGate {
	return &InboundGate{
		agentID:   cfg.AgentID,
		allowFrom: cfg.AllowFrom,
		verifier:  cfg.Verifier,
		tracker:   cfg.Tracker,
		resolver:  cfg.Resolver,
		evaluator: cfg.Evaluator,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
	}
}

// ackResponse is the webhook reply. Acknowledged means "stop redelivering";
// it says nothing about whether the message reached the agent, so delivery
// receipts never leak policy decisions to the sender.
type ackResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	Processed    *bool  `json:"processed,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func notProcessed(reason string) ackResponse {
	p := false
	return ackResponse{Acknowledged: true, Processed: &p, Reason: reason}
}

// WebhookHandler returns the http.Handler for registry deliveries.
//
// Signature verification runs against the raw body bytes before any JSON
// parsing. The 200 ack is sent as soon as the heuristic checks pass;
// semantic evaluation and dispatch continue in the background so webhook
// latency never includes a model call.
func (g *InboundGate) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}

		if g.verifier != nil {
			sig := r.Header.Get(HeaderSignature)
			ts := r.Header.Get(HeaderTimestamp)
			if !g.verifier.Verify(string(rawBody), sig, ts) {
				logger.WarnCF("gate", "Webhook signature rejected", map[string]any{
					"remote": r.RemoteAddr,
				})
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
				return
			}
		}

		var msg bus.Message
		if err := json.Unmarshal(rawBody, &msg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if msg.ID == "" || msg.Sender == "" || msg.Body == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message_id, sender and message are required"})
			return
		}

		writeJSON(w, http.StatusOK, g.accept(r.Context(), msg))
	})
}

// ProcessStream runs a stream-delivered message through the same pipeline.
// The authenticated stream connection stands in for the webhook signature.
func (g *InboundGate) ProcessStream(ctx context.Context, msg bus.Message) {
	if msg.ID == "" || msg.Sender == "" || msg.Body == "" {
		logger.WarnCF("gate", "Dropping incomplete stream message", map[string]any{
			"message_id": msg.ID,
		})
		return
	}
	ack := g.accept(ctx, msg)
	if ack.Duplicate {
		logger.DebugCF("gate", "Duplicate stream message", map[string]any{"message_id": msg.ID})
	}
}

// accept runs allow-list, dedup and heuristic checks synchronously, then
// hands the message to background semantic evaluation. The returned ack is
// final from the sender's perspective.
func (g *InboundGate) accept(ctx context.Context, msg bus.Message) ackResponse {
	g.metrics.Record(policy.DirectionInbound, OutcomeReceived)

	if len(g.allowFrom) > 0 && !contains(g.allowFrom, msg.Sender) {
		logger.InfoCF("gate", "Sender not in allow list", map[string]any{
			"message_id": msg.ID,
			"sender":     msg.Sender,
		})
		g.metrics.Record(policy.DirectionInbound, OutcomeNotAllowed)
		return notProcessed("sender_not_allowed")
	}

	if g.tracker.Has(msg.ID) {
		g.metrics.Record(policy.DirectionInbound, OutcomeDuplicate)
		return ackResponse{Acknowledged: true, Duplicate: true}
	}

	target := semantic.Target{Peer: msg.Sender, Group: msg.GroupID}
	rules, semPolicies := g.resolver.Resolve(ctx, policy.DirectionInbound, target)

	if d := policy.Evaluate(msg.Body, msg.Context, rules, policy.DirectionInbound); !d.Allowed {
		logger.InfoCF("gate", "Inbound message blocked", map[string]any{
			"message_id": msg.ID,
			"sender":     msg.Sender,
			"reason":     d.Reason,
		})
		g.metrics.Record(policy.DirectionInbound, OutcomeHeuristicBlocked)
		return notProcessed(d.Reason)
	}

	// Mark before acking: a redelivery racing the background evaluation
	// must not enter the pipeline twice.
	g.tracker.Mark(msg.ID)

	go g.finish(msg, semPolicies)

	return ackResponse{Acknowledged: true}
}

// finish runs semantic evaluation and publishes the message for dispatch.
// It runs detached from the webhook request context.
func (g *InboundGate) finish(msg bus.Message, policies []semantic.Policy) {
	ctx := context.Background()

	outcome := g.evaluator.EvaluateMany(ctx, policies, msg.Body, msg.Context)
	if !outcome.Allowed {
		logger.InfoCF("gate", "Inbound message blocked by semantic policy", map[string]any{
			"message_id":  msg.ID,
			"sender":      msg.Sender,
			"policy_id":   outcome.BlockingPolicyID,
			"policy_name": outcome.BlockingPolicyName,
			"reason":      outcome.Reason,
		})
		g.metrics.Record(policy.DirectionInbound, OutcomeSemanticBlocked)
		return
	}

	g.metrics.Record(policy.DirectionInbound, OutcomeAccepted)
	if err := g.bus.PublishAccepted(ctx, msg); err != nil {
		logger.ErrorCF("gate", "Publishing accepted message failed", map[string]any{
			"message_id": msg.ID,
			"error":      err.Error(),
		})
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
