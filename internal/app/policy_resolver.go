package app

import (
	"context"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/ports/secondary"
)

// ResolvedTiers is the ladder that governs a ticket and where it came from.
type ResolvedTiers struct {
	Scope escalation.Scope
	Tiers []escalation.Tier
}

// PolicyResolver picks the escalation policy for a ticket.
// Precedence is all-or-nothing: the first scope in property -> plan -> global
// with any stored tier wins outright, and no tiers are merged across scopes.
// When nothing is stored, the built-in ladder applies.
type PolicyResolver struct {
	policies secondary.PolicyRepository
	orgPlans secondary.OrgPlanRepository
}

// NewPolicyResolver creates a new PolicyResolver.
func NewPolicyResolver(policies secondary.PolicyRepository, orgPlans secondary.OrgPlanRepository) *PolicyResolver {
	return &PolicyResolver{
		policies: policies,
		orgPlans: orgPlans,
	}
}

// PlanIDForOrg maps an organization to its subscription plan ID via the plan
// name. An empty result with a nil error means the org has no usable plan.
func (r *PolicyResolver) PlanIDForOrg(ctx context.Context, cache *ResolutionCache, orgID string) (string, error) {
	if orgID == "" {
		return "", nil
	}
	return cache.orgPlans.get(ctx, orgID, func() (string, error) {
		name, found, err := r.orgPlans.PlanNameForOrg(ctx, orgID)
		if err != nil {
			return "", &escalation.TransientLookupError{Op: "plan name for org", Key: orgID, Err: err}
		}
		if !found {
			return "", nil
		}
		return cache.planIDs.get(ctx, name, func() (string, error) {
			id, found, err := r.orgPlans.PlanIDForName(ctx, name)
			if err != nil {
				return "", &escalation.TransientLookupError{Op: "plan id for name", Key: name, Err: err}
			}
			if !found {
				return "", nil
			}
			return id, nil
		})
	})
}

// Resolve returns the tiers for a property/plan pair, ascending by level.
// A malformed stored policy yields a *escalation.ConfigurationError rather
// than falling through to a less specific scope.
func (r *PolicyResolver) Resolve(ctx context.Context, cache *ResolutionCache, propertyID, planID string) (*ResolvedTiers, error) {
	for _, scope := range escalation.ScopeChain(propertyID, planID) {
		stored, err := r.tiersFor(ctx, cache, scope)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			return &ResolvedTiers{Scope: scope, Tiers: stored}, nil
		}
	}
	return &ResolvedTiers{Scope: escalation.DefaultScope(), Tiers: escalation.DefaultTiers()}, nil
}

func (r *PolicyResolver) tiersFor(ctx context.Context, cache *ResolutionCache, scope escalation.Scope) ([]escalation.Tier, error) {
	result, err := cache.tiers.get(ctx, scope.String(), func() (scopeTiers, error) {
		records, err := r.policies.FindTiers(ctx, toPolicyScope(scope))
		if err != nil {
			return scopeTiers{}, &escalation.TransientLookupError{Op: "find tiers", Key: scope.String(), Err: err}
		}
		tiers := make([]escalation.Tier, len(records))
		for i, rec := range records {
			tiers[i] = escalation.Tier{
				Level:              rec.Level,
				Role:               rec.Role,
				HoursAfterDeadline: rec.HoursAfterDeadline,
			}
		}
		tiers = escalation.SortTiers(tiers)
		return scopeTiers{tiers: tiers, err: escalation.ValidateTiers(scope, tiers)}, nil
	})
	if err != nil {
		return nil, err
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.tiers, nil
}

func toPolicyScope(scope escalation.Scope) secondary.PolicyScope {
	switch scope.Kind {
	case escalation.ScopeProperty:
		return secondary.PolicyScope{PropertyID: scope.ID}
	case escalation.ScopePlan:
		return secondary.PolicyScope{PlanID: scope.ID}
	default:
		return secondary.PolicyScope{}
	}
}
