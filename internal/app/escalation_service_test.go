package app

import (
	"context"
	"testing"
	"time"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/ports/primary"
	"github.com/example/leasehold/internal/ports/secondary"
)

func newTestEscalationService(f *engineFixture) *EscalationServiceImpl {
	svc := NewEscalationService(f.engine(testEngineConfig(), nil), f.resolver(), f.ledger)
	svc.clock = func() time.Time { return testNow }
	return svc
}

func TestEscalationService_RunEscalations(t *testing.T) {
	f := newEngineFixture()
	f.tickets.add("TKT-001", "ORG-001", "PROP-001", "open", overdue(25))
	svc := newTestEscalationService(f)

	summary, err := svc.RunEscalations(context.Background(), primary.RunRequest{})
	if err != nil {
		t.Fatalf("RunEscalations failed: %v", err)
	}
	if summary.Escalated != 2 {
		t.Errorf("expected 2 escalations at the service clock, got %d", summary.Escalated)
	}
	if summary.RunID == "" {
		t.Error("expected run ID")
	}

	// An explicit now wins over the clock
	summary, err = svc.RunEscalations(context.Background(), primary.RunRequest{Now: testNow.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("RunEscalations failed: %v", err)
	}
	if summary.Escalated != 1 {
		t.Errorf("expected the third tier at now+24h, got %d", summary.Escalated)
	}

	if _, err := svc.RunEscalations(context.Background(), primary.RunRequest{Limit: -1}); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestEscalationService_ResolvePolicy(t *testing.T) {
	f := newEngineFixture()
	f.orgPlans.orgPlans["ORG-001"] = "pro"
	f.orgPlans.planIDs["pro"] = "PLAN-PRO"
	f.policies.set(secondary.PolicyScope{PlanID: "PLAN-PRO"},
		escalation.Tier{Level: 1, Role: escalation.RoleAdmin, HoursAfterDeadline: 0},
		escalation.Tier{Level: 2, Role: escalation.RoleManager, HoursAfterDeadline: 12})
	f.policies.set(secondary.PolicyScope{PlanID: "PLAN-STARTER"},
		escalation.Tier{Level: 1, Role: escalation.RoleSuperAdmin, HoursAfterDeadline: 1})
	svc := newTestEscalationService(f)

	tests := []struct {
		name      string
		query     primary.PolicyQuery
		wantScope string
		wantTiers int
	}{
		{"via organization", primary.PolicyQuery{PropertyID: "PROP-001", OrgID: "ORG-001"}, "plan:PLAN-PRO", 2},
		{"explicit plan", primary.PolicyQuery{PropertyID: "PROP-001", PlanID: "PLAN-STARTER", OrgID: "ORG-001"}, "plan:PLAN-STARTER", 1},
		{"nothing stored", primary.PolicyQuery{PropertyID: "PROP-001"}, "default", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := svc.ResolvePolicy(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("ResolvePolicy failed: %v", err)
			}
			if policy.Scope != tt.wantScope {
				t.Errorf("scope = %s, want %s", policy.Scope, tt.wantScope)
			}
			if len(policy.Tiers) != tt.wantTiers {
				t.Errorf("tiers = %d, want %d", len(policy.Tiers), tt.wantTiers)
			}
		})
	}
}

func TestEscalationService_ListEscalations(t *testing.T) {
	f := newEngineFixture()
	f.tickets.add("TKT-001", "ORG-001", "PROP-001", "open", overdue(30))
	svc := newTestEscalationService(f)

	if _, err := svc.RunEscalations(context.Background(), primary.RunRequest{}); err != nil {
		t.Fatalf("RunEscalations failed: %v", err)
	}

	escalations, err := svc.ListEscalations(context.Background(), "TKT-001")
	if err != nil {
		t.Fatalf("ListEscalations failed: %v", err)
	}
	if len(escalations) != 2 {
		t.Fatalf("expected 2 escalations, got %d", len(escalations))
	}
	first := escalations[0]
	if first.Level != 1 || first.Role != escalation.RoleAdmin || first.OrgID != "ORG-001" || !first.TriggeredAt.Equal(testNow) {
		t.Errorf("unexpected escalation: %+v", first)
	}
	if first.ID == "" {
		t.Error("expected ledger ID")
	}
}
