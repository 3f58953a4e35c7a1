package primary

import (
	"context"
	"time"
)

// EscalationService defines the primary port for escalation operations.
type EscalationService interface {
	// RunEscalations performs one reconciliation pass over open tickets as of now.
	RunEscalations(ctx context.Context, req RunRequest) (*RunSummary, error)

	// ResolvePolicy returns the tiers that would govern a ticket.
	ResolvePolicy(ctx context.Context, query PolicyQuery) (*ResolvedPolicy, error)

	// ListEscalations lists the ledger entries recorded for a ticket.
	ListEscalations(ctx context.Context, ticketID string) ([]*Escalation, error)
}

// RunRequest parameterizes a single run.
type RunRequest struct {
	Now   time.Time // zero means the current time
	Limit int       // zero means the configured batch size
}

// RunSummary is the outcome of one run.
type RunSummary struct {
	RunID     string
	Processed int  // tickets evaluated
	Escalated int  // ledger entries newly written
	Tickets   int  // distinct tickets that received at least one new entry
	Failed    int  // tickets skipped because of an error
	Truncated bool // the batch cap was reached; more tickets may be waiting
	TimedOut  bool // the run budget expired before every ticket was admitted
	Contended bool // another process held the run lease; nothing was evaluated
	Duration  time.Duration
}

// PolicyQuery identifies the ticket context a policy is resolved for.
// PlanID, when set, is used as-is; otherwise OrgID is mapped to its plan.
type PolicyQuery struct {
	PropertyID string
	PlanID     string
	OrgID      string
}

// ResolvedPolicy is the tier ladder governing a property.
type ResolvedPolicy struct {
	Scope string // "property:<id>", "plan:<id>", "global" or "default"
	Tiers []Tier
}

// Tier represents an escalation tier at the port boundary.
type Tier struct {
	Level              int
	Role               string
	HoursAfterDeadline float64
}

// Escalation represents a ledger entry at the port boundary.
type Escalation struct {
	ID          string
	TicketID    string
	OrgID       string
	PropertyID  string
	Level       int
	Role        string
	TriggeredAt time.Time
}
