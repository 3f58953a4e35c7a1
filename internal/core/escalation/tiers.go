// Package escalation contains the pure business logic for ticket escalation.
// Nothing in this package performs I/O: tier validation, scope precedence,
// eligibility guards and threshold planning are all plain functions over values.
package escalation

import (
	"fmt"
	"sort"
)

// Built-in roles used by the fallback policy.
const (
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// Tier is one rung of an escalation ladder.
type Tier struct {
	Level              int
	Role               string
	HoursAfterDeadline float64
}

// ScopeKind identifies what a policy is bound to.
type ScopeKind string

const (
	ScopeProperty ScopeKind = "property"
	ScopePlan     ScopeKind = "plan"
	ScopeGlobal   ScopeKind = "global"
	// ScopeDefault marks the built-in ladder; it is never stored.
	ScopeDefault ScopeKind = "default"
)

// Scope binds a policy to a property, a subscription plan, or everything.
// ID is empty for the global scope.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// PropertyScope returns the scope for a single property.
func PropertyScope(propertyID string) Scope { return Scope{Kind: ScopeProperty, ID: propertyID} }

// PlanScope returns the scope for a subscription plan.
func PlanScope(planID string) Scope { return Scope{Kind: ScopePlan, ID: planID} }

// GlobalScope returns the catch-all scope.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// DefaultScope returns the scope reported for DefaultTiers.
func DefaultScope() Scope { return Scope{Kind: ScopeDefault} }

func (s Scope) String() string {
	if s.ID == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// ScopeChain returns the scopes to consult for a ticket, most specific first.
// Scopes whose identifier is unknown are left out entirely.
func ScopeChain(propertyID, planID string) []Scope {
	chain := make([]Scope, 0, 3)
	if propertyID != "" {
		chain = append(chain, PropertyScope(propertyID))
	}
	if planID != "" {
		chain = append(chain, PlanScope(planID))
	}
	return append(chain, GlobalScope())
}

// DefaultTiers is the ladder used when no stored policy applies.
func DefaultTiers() []Tier {
	return []Tier{
		{Level: 1, Role: RoleAdmin, HoursAfterDeadline: 0},
		{Level: 2, Role: RoleManager, HoursAfterDeadline: 24},
		{Level: 3, Role: RoleSuperAdmin, HoursAfterDeadline: 48},
	}
}

// SortTiers returns a copy of tiers ordered by ascending level.
func SortTiers(tiers []Tier) []Tier {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Level < sorted[j].Level
	})
	return sorted
}

// ValidateTiers checks the structural invariants of a stored policy:
// positive unique levels, a role per tier, non-negative hours, and hours
// strictly increasing with level. tiers must already be sorted by level.
func ValidateTiers(scope Scope, tiers []Tier) error {
	for i, t := range tiers {
		if t.Level < 1 {
			return &ConfigurationError{Scope: scope, Reason: fmt.Sprintf("tier level %d is not positive", t.Level)}
		}
		if t.Role == "" {
			return &ConfigurationError{Scope: scope, Reason: fmt.Sprintf("tier level %d has no role", t.Level)}
		}
		if t.HoursAfterDeadline < 0 {
			return &ConfigurationError{Scope: scope, Reason: fmt.Sprintf("tier level %d has negative hours %.2f", t.Level, t.HoursAfterDeadline)}
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.Level == prev.Level {
			return &ConfigurationError{Scope: scope, Reason: fmt.Sprintf("duplicate tier level %d", t.Level)}
		}
		if t.HoursAfterDeadline <= prev.HoursAfterDeadline {
			return &ConfigurationError{
				Scope:  scope,
				Reason: fmt.Sprintf("tier level %d fires at %.2fh, not after level %d at %.2fh", t.Level, t.HoursAfterDeadline, prev.Level, prev.HoursAfterDeadline),
			}
		}
	}
	return nil
}
