// Package semantic evaluates messages against natural-language policies by
// delegating to an injected text-completion capability.
package semantic

import (
	"sort"

	"github.com/tinyland-inc/clawgate/pkg/policy"
)

// Scope is the breadth of applicability of a policy.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeUser   Scope = "user"
	ScopeGroup  Scope = "group"
)

// PolicyDirection is the message flow a policy applies to.
type PolicyDirection string

const (
	DirectionOutbound PolicyDirection = "outbound"
	DirectionInbound  PolicyDirection = "inbound"
	DirectionBoth     PolicyDirection = "both"
)

// FailBehavior is what happens when evaluating the policy itself errors.
type FailBehavior string

const (
	// FailOpen allows the message when evaluation errors. Default.
	FailOpen FailBehavior = "open"
	// FailClosed blocks the message when evaluation errors.
	FailClosed FailBehavior = "closed"
)

// Policy is one natural-language rule.
type Policy struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Content      string          `json:"policy_content"`
	Scope        Scope           `json:"scope"`
	Direction    PolicyDirection `json:"direction"`
	Priority     int             `json:"priority"`
	TargetUser   string          `json:"target_user,omitempty"`
	TargetGroup  string          `json:"target_group,omitempty"`
	Enabled      bool            `json:"enabled"`
	FailBehavior FailBehavior    `json:"fail_behavior,omitempty"`
}

// Target identifies who a message concerns, for scope matching. Peer is the
// remote party (the sender on inbound, the recipient on outbound), Group the
// group conversation if any.
type Target struct {
	Peer  string
	Group string
}

// AppliesTo reports whether the policy covers the given direction and target.
// Global policies always apply to their declared direction; user and group
// scoped policies require a target match.
func (p Policy) AppliesTo(dir policy.Direction, target Target) bool {
	if !p.Enabled {
		return false
	}

	switch p.Direction {
	case DirectionBoth, "":
	case DirectionInbound:
		if dir != policy.DirectionInbound {
			return false
		}
	case DirectionOutbound:
		if dir != policy.DirectionOutbound {
			return false
		}
	default:
		return false
	}

	switch p.Scope {
	case ScopeUser:
		return p.TargetUser != "" && p.TargetUser == target.Peer
	case ScopeGroup:
		return p.TargetGroup != "" && p.TargetGroup == target.Group
	default:
		return true
	}
}

// Applicable filters policies down to those covering the direction and
// target, sorted by priority descending (stable, so equal priorities keep
// their supplied order).
func Applicable(policies []Policy, dir policy.Direction, target Target) []Policy {
	var out []Policy
	for _, p := range policies {
		if p.AppliesTo(dir, target) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
