package registry

import (
	"github.com/tinyland-inc/clawgate/pkg/policy"
	"github.com/tinyland-inc/clawgate/pkg/semantic"
)

// Policy is the registry's wire shape for a policy. Heuristic policies carry
// a rules object; semantic policies carry natural-language content. The wire
// format varies (bare array vs {"items":[...]}, optional fields) and is
// normalized here at the boundary so the rest of the gate never branches on
// it.
type Policy struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	Type         string                   `json:"type,omitempty"` // "heuristic" | "semantic"
	Content      string                   `json:"policy_content,omitempty"`
	Rules        *policy.Rules            `json:"rules,omitempty"`
	Scope        semantic.Scope           `json:"scope,omitempty"`
	Direction    semantic.PolicyDirection `json:"direction,omitempty"`
	Priority     int                      `json:"priority,omitempty"`
	TargetUser   string                   `json:"target_user,omitempty"`
	TargetGroup  string                   `json:"target_group,omitempty"`
	Enabled      *bool                    `json:"enabled,omitempty"` // absent means enabled
	FailBehavior semantic.FailBehavior    `json:"fail_behavior,omitempty"`
}

// IsEnabled treats an absent enabled flag as true.
func (p Policy) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// Semantic converts the wire policy into the evaluator's shape.
func (p Policy) Semantic() semantic.Policy {
	fb := p.FailBehavior
	if fb == "" {
		fb = semantic.FailOpen
	}
	scope := p.Scope
	if scope == "" {
		scope = semantic.ScopeGlobal
	}
	return semantic.Policy{
		ID:           p.ID,
		Name:         p.Name,
		Content:      p.Content,
		Scope:        scope,
		Direction:    p.Direction,
		Priority:     p.Priority,
		TargetUser:   p.TargetUser,
		TargetGroup:  p.TargetGroup,
		Enabled:      p.IsEnabled(),
		FailBehavior: fb,
	}
}

// Split partitions policies into heuristic rule sets and semantic policies,
// preserving the given (priority-sorted) order. Disabled policies are
// dropped.
func Split(policies []Policy) ([]policy.Rules, []semantic.Policy) {
	var rules []policy.Rules
	var sem []semantic.Policy
	for _, p := range policies {
		if !p.IsEnabled() {
			continue
		}
		if p.Rules != nil {
			rules = append(rules, *p.Rules)
		}
		if p.Content != "" {
			sem = append(sem, p.Semantic())
		}
	}
	return rules, sem
}

// DeliveryStatus is the transport's answer for an accepted outbound message.
type DeliveryStatus struct {
	Status     string `json:"status"` // "delivered" | "pending" | "rejected"
	DeliveryID string `json:"delivery_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
