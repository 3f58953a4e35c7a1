package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/ports/primary"
	"github.com/example/leasehold/internal/ports/secondary"
)

// EscalationServiceImpl implements the EscalationService interface.
type EscalationServiceImpl struct {
	engine   *EscalationEngine
	resolver *PolicyResolver
	ledger   secondary.EscalationEventRepository
	clock    func() time.Time
}

// NewEscalationService creates a new EscalationService with injected dependencies.
func NewEscalationService(engine *EscalationEngine, resolver *PolicyResolver, ledger secondary.EscalationEventRepository) *EscalationServiceImpl {
	return &EscalationServiceImpl{
		engine:   engine,
		resolver: resolver,
		ledger:   ledger,
		clock:    time.Now,
	}
}

// RunEscalations performs one reconciliation pass.
func (s *EscalationServiceImpl) RunEscalations(ctx context.Context, req primary.RunRequest) (*primary.RunSummary, error) {
	now := req.Now
	if now.IsZero() {
		now = s.clock()
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", req.Limit)
	}
	return s.engine.Run(ctx, now, req.Limit)
}

// ResolvePolicy returns the ladder that would govern a ticket, using a fresh
// cache so the answer reflects current data.
func (s *EscalationServiceImpl) ResolvePolicy(ctx context.Context, query primary.PolicyQuery) (*primary.ResolvedPolicy, error) {
	cache := NewResolutionCache()

	planID := query.PlanID
	if planID == "" && query.OrgID != "" {
		var err error
		planID, err = s.resolver.PlanIDForOrg(ctx, cache, query.OrgID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve organization plan: %w", err)
		}
	}

	resolved, err := s.resolver.Resolve(ctx, cache, query.PropertyID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy: %w", err)
	}

	policy := &primary.ResolvedPolicy{
		Scope: resolved.Scope.String(),
		Tiers: make([]primary.Tier, len(resolved.Tiers)),
	}
	for i, t := range resolved.Tiers {
		policy.Tiers[i] = tierToPrimary(t)
	}
	return policy, nil
}

// ListEscalations lists the ledger entries recorded for a ticket.
func (s *EscalationServiceImpl) ListEscalations(ctx context.Context, ticketID string) ([]*primary.Escalation, error) {
	records, err := s.ledger.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}

	escalations := make([]*primary.Escalation, len(records))
	for i, r := range records {
		escalations[i] = s.recordToEscalation(r)
	}
	return escalations, nil
}

// Helper methods

func (s *EscalationServiceImpl) recordToEscalation(r *secondary.EscalationEventRecord) *primary.Escalation {
	return &primary.Escalation{
		ID:          r.ID,
		TicketID:    r.TicketID,
		OrgID:       r.OrgID,
		PropertyID:  r.PropertyID,
		Level:       r.Level,
		Role:        r.Role,
		TriggeredAt: r.TriggeredAt,
	}
}

func tierToPrimary(t escalation.Tier) primary.Tier {
	return primary.Tier{
		Level:              t.Level,
		Role:               t.Role,
		HoursAfterDeadline: t.HoursAfterDeadline,
	}
}

// Ensure EscalationServiceImpl implements the interface
var _ primary.EscalationService = (*EscalationServiceImpl)(nil)
