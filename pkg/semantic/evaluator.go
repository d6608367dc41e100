package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tinyland-inc/clawgate/pkg/logger"
)

const (
	// DefaultTimeout bounds a single policy evaluation call.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxTokens bounds the completion length; a decision object is
	// tiny, anything longer is prose we tolerate but do not need.
	DefaultMaxTokens = 512
)

// CompletionRequest is a bounded, tool-disabled text completion.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer is the injected model-invocation capability. Implementations
// must honor ctx cancellation and return the raw response text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config holds evaluation parameters.
type Config struct {
	Timeout     time.Duration // per policy; DefaultTimeout if zero
	Temperature float64       // default 0 for deterministic decisions
	MaxTokens   int           // DefaultMaxTokens if zero
}

// Decision is the outcome of evaluating one policy.
type Decision struct {
	Allowed bool
	Reason  string
	// Err carries the underlying evaluation failure, for logging only.
	// It is never included in Reason.
	Err error
}

// Outcome is the result of evaluating an ordered policy list.
type Outcome struct {
	Allowed            bool
	Reason             string
	BlockingPolicyID   string
	BlockingPolicyName string
}

// Evaluator runs semantic policies through a Completer.
type Evaluator struct {
	completer Completer
	cfg       Config
}

// NewEvaluator creates an Evaluator. A nil completer is allowed only if no
// policies are ever evaluated.
func NewEvaluator(completer Completer, cfg Config) *Evaluator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Evaluator{completer: completer, cfg: cfg}
}

// EvaluateOne evaluates a single policy against a message body and optional
// context. Unparseable model output defaults to ALLOW: garbled output must
// never silently block. Invocation failures resolve per the policy's fail
// behavior.
func (e *Evaluator) EvaluateOne(ctx context.Context, p Policy, body, msgContext string) Decision {
	prompt := buildPrompt(p, body, msgContext)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	text, err := e.completer.Complete(callCtx, CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		if p.FailBehavior == FailClosed {
			return Decision{
				Allowed: false,
				Reason:  "policy evaluation unavailable",
				Err:     fmt.Errorf("policy %s: %w", p.ID, err),
			}
		}
		return Decision{
			Allowed: true,
			Err:     fmt.Errorf("policy %s: %w", p.ID, err),
		}
	}

	verdict, reason, ok := extractDecision(text)
	if !ok {
		logger.WarnCF("semantic", "No parseable decision in model output", map[string]any{
			"policy_id": p.ID,
		})
		return Decision{Allowed: true}
	}

	if verdict == "BLOCK" {
		if reason == "" {
			reason = "blocked by policy"
		}
		return Decision{Allowed: false, Reason: reason}
	}
	return Decision{Allowed: true, Reason: reason}
}

// EvaluateMany evaluates policies in the order given, stopping at the first
// BLOCK. Remaining policies are never invoked once one has blocked: this
// bounds cost and avoids exposing message content to policies that do not
// need to see it. Zero policies means allowed with zero capability calls.
func (e *Evaluator) EvaluateMany(ctx context.Context, policies []Policy, body, msgContext string) Outcome {
	for _, p := range policies {
		d := e.EvaluateOne(ctx, p, body, msgContext)
		if d.Err != nil {
			logger.ErrorCF("semantic", "Policy evaluation error", map[string]any{
				"policy_id":   p.ID,
				"policy_name": p.Name,
				"fail_open":   p.FailBehavior != FailClosed,
				"error":       d.Err.Error(),
			})
		}
		if !d.Allowed {
			return Outcome{
				Allowed:            false,
				Reason:             d.Reason,
				BlockingPolicyID:   p.ID,
				BlockingPolicyName: p.Name,
			}
		}
	}
	return Outcome{Allowed: true}
}

func buildPrompt(p Policy, body, msgContext string) string {
	var sb strings.Builder
	sb.WriteString("You are a message policy gate for an agent messaging network.\n")
	sb.WriteString("Decide whether the message below complies with the policy.\n\n")
	sb.WriteString("Policy name: ")
	sb.WriteString(p.Name)
	sb.WriteString("\nPolicy:\n")
	sb.WriteString(p.Content)
	sb.WriteString("\n\nMessage:\n")
	sb.WriteString(body)
	if strings.TrimSpace(msgContext) != "" {
		sb.WriteString("\n\nStated intent of the message:\n")
		sb.WriteString(msgContext)
	}
	sb.WriteString("\n\nRespond with a single JSON object and nothing else: ")
	sb.WriteString(`{"decision": "ALLOW" or "BLOCK", "reason": "one short sentence"}`)
	return sb.String()
}

type decisionPayload struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// extractDecision finds the first well-formed decision object anywhere in
// the response text, tolerating surrounding prose and code fences.
func extractDecision(text string) (verdict, reason string, ok bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		var payload decisionPayload
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&payload); err != nil {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(payload.Decision)) {
		case "ALLOW":
			return "ALLOW", payload.Reason, true
		case "BLOCK":
			return "BLOCK", payload.Reason, true
		}
	}
	return "", "", false
}
