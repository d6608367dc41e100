package gate

import (
	"context"

	"github.com/tinyland-inc/clawgate/pkg/logger"
	"github.com/tinyland-inc/clawgate/pkg/policy"
	"github.com/tinyland-inc/clawgate/pkg/registry"
	"github.com/tinyland-inc/clawgate/pkg/semantic"
)

// PolicySource supplies registry policies for a direction; satisfied by
// *registry.PolicyCache.
type PolicySource interface {
	Policies(ctx context.Context, dir policy.Direction) ([]registry.Policy, error)
}

// Resolver produces the effective policy for one message: the merged
// heuristic rule set per the configured mode, and the semantic policies
// applicable to the direction and target.
type Resolver struct {
	local  policy.Rules
	mode   policy.Mode
	source PolicySource // nil when no registry is configured
}

// NewResolver wires a resolver. A nil source degrades to local rules and no
// semantic policies.
func NewResolver(local policy.Rules, mode policy.Mode, source PolicySource) *Resolver {
	return &Resolver{local: local, mode: mode, source: source}
}

// Resolve fetches registry policies and combines them with local
// configuration. A registry fetch failure degrades to local rules with a
// warning; gating must keep working when the registry is down.
//
// The mode selects heuristic rule sources only. Semantic policies exist only
// in the registry and are applied in every mode.
func (r *Resolver) Resolve(ctx context.Context, dir policy.Direction, target semantic.Target) (policy.Rules, []semantic.Policy) {
	if r.source == nil {
		return policy.Resolve(r.local, nil, r.mode), nil
	}

	fetched, err := r.source.Policies(ctx, dir)
	if err != nil {
		logger.WarnCF("gate", "Policy fetch failed, using local rules only", map[string]any{
			"direction": string(dir),
			"error":     err.Error(),
		})
		return policy.Resolve(r.local, nil, r.mode), nil
	}

	registryRules, semPolicies := registry.Split(fetched)
	rules := policy.Resolve(r.local, registryRules, r.mode)
	return rules, semantic.Applicable(semPolicies, dir, target)
}
