package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/clawgate/pkg/bus"
	"github.com/tinyland-inc/clawgate/pkg/logger"
	"github.com/tinyland-inc/clawgate/pkg/policy"
	"github.com/tinyland-inc/clawgate/pkg/registry"
	"github.com/tinyland-inc/clawgate/pkg/routing"
	"github.com/tinyland-inc/clawgate/pkg/semantic"
)

// Transport submits accepted outbound messages; satisfied by
// *registry.Client.
type Transport interface {
	FetchConnections(ctx context.Context, agentID string) ([]routing.Connection, error)
	SendMessage(ctx context.Context, msg bus.Message) (*registry.DeliveryStatus, error)
}

// SendRequest is a message the local agent wants delivered.
type SendRequest struct {
	Recipient       string
	Body            string
	Context         string
	GroupID         string
	GroupName       string
	CorrelationID   string
	ConnectionLabel string
	Tags            []string
}

// OutboundGate screens and routes messages the local agent sends.
type OutboundGate struct {
	agentID   string
	resolver  *Resolver
	evaluator *semantic.Evaluator
	transport Transport
	metrics   *Metrics
	newID     func() string
	now       func() time.Time
}

// OutboundGateConfig wires an OutboundGate.
type OutboundGateConfig struct {
	AgentID   string
	Resolver  *Resolver
	Evaluator *semantic.Evaluator
	Transport Transport
	Metrics   *Metrics
}

func NewOutboundGate(cfg OutboundGateConfig) *OutboundGate {
	return &OutboundGate{
		agentID:   cfg.AgentID,
		resolver:  cfg.Resolver,
		evaluator: cfg.Evaluator,
		transport: cfg.Transport,
		metrics:   cfg.Metrics,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Send gates a message and, if allowed, routes and submits it. Policy blocks
// return a *PolicyViolationError; transport problems return other errors. A
// registry without group support yields a rejected DeliveryStatus, not an
// error.
func (g *OutboundGate) Send(ctx context.Context, req SendRequest) (*registry.DeliveryStatus, error) {
	if req.Body == "" {
		return nil, errors.New("message body is required")
	}
	if req.Recipient == "" && req.GroupID == "" {
		return nil, errors.New("a recipient or group is required")
	}

	g.metrics.Record(policy.DirectionOutbound, OutcomeReceived)

	target := semantic.Target{Peer: req.Recipient, Group: req.GroupID}
	rules, semPolicies := g.resolver.Resolve(ctx, policy.DirectionOutbound, target)

	if d := policy.Evaluate(req.Body, req.Context, rules, policy.DirectionOutbound); !d.Allowed {
		g.metrics.Record(policy.DirectionOutbound, OutcomeHeuristicBlocked)
		return nil, &PolicyViolationError{Stage: StageHeuristic, Reason: d.Reason}
	}

	outcome := g.evaluator.EvaluateMany(ctx, semPolicies, req.Body, req.Context)
	if !outcome.Allowed {
		g.metrics.Record(policy.DirectionOutbound, OutcomeSemanticBlocked)
		return nil, &PolicyViolationError{
			Stage:      StageSemantic,
			Reason:     outcome.Reason,
			PolicyID:   outcome.BlockingPolicyID,
			PolicyName: outcome.BlockingPolicyName,
		}
	}

	msg := bus.Message{
		ID:            g.newID(),
		Sender:        g.agentID,
		Recipient:     req.Recipient,
		Body:          req.Body,
		Context:       req.Context,
		GroupID:       req.GroupID,
		GroupName:     req.GroupName,
		CorrelationID: req.CorrelationID,
		Timestamp:     g.now().Unix(),
	}

	if req.Recipient != "" {
		msg.RecipientConnectionID = g.route(ctx, req)
	}

	status, err := g.transport.SendMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, registry.ErrGroupNotSupported) {
			g.metrics.Record(policy.DirectionOutbound, OutcomeRejected)
			return &registry.DeliveryStatus{
				Status: "rejected",
				Reason: "group_not_supported",
			}, nil
		}
		g.metrics.Record(policy.DirectionOutbound, OutcomeError)
		return nil, fmt.Errorf("sending message %s: %w", msg.ID, err)
	}

	g.metrics.Record(policy.DirectionOutbound, OutcomeDelivered)
	logger.InfoCF("gate", "Outbound message submitted", map[string]any{
		"message_id": msg.ID,
		"recipient":  req.Recipient,
		"status":     status.Status,
	})
	return status, nil
}

// route picks a recipient connection. Routing is best-effort: no active
// connection just means the registry decides delivery itself.
func (g *OutboundGate) route(ctx context.Context, req SendRequest) string {
	conns, err := g.transport.FetchConnections(ctx, req.Recipient)
	if err != nil {
		logger.WarnCF("gate", "Connection lookup failed, sending unrouted", map[string]any{
			"recipient": req.Recipient,
			"error":     err.Error(),
		})
		return ""
	}

	conn := routing.Select(conns, routing.Criteria{Label: req.ConnectionLabel, Tags: req.Tags})
	if conn == nil {
		logger.DebugCF("gate", "No routable connection", map[string]any{
			"recipient": req.Recipient,
		})
		return ""
	}
	return conn.ID
}
