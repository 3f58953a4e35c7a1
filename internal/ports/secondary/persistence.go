// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"time"
)

// TicketRepository defines the secondary port for service ticket persistence.
// Tickets are created and closed elsewhere; the escalation engine only reads
// open tickets and maintains their denormalized escalation summary.
type TicketRepository interface {
	// FetchOpenWithDeadline returns tickets that are not completed/closed and
	// have a deadline, most overdue (earliest deadline) first.
	FetchOpenWithDeadline(ctx context.Context, filters TicketFilters) ([]*TicketRecord, error)

	// GetByID retrieves a ticket by its ID.
	GetByID(ctx context.Context, id string) (*TicketRecord, error)

	// UpdateEscalationSummary sets escalated_at and re-derives
	// current_escalation_level from the ledger. level is the tier just applied
	// and acts as a floor if the ledger read lags.
	UpdateEscalationSummary(ctx context.Context, ticketID string, level int, triggeredAt time.Time) error

	// ResyncEscalationSummary recomputes current_escalation_level from the
	// ledger for every ticket and returns the number of rows changed.
	ResyncEscalationSummary(ctx context.Context) (int, error)
}

// TicketRecord represents a service ticket as stored in persistence.
type TicketRecord struct {
	ID                     string
	PropertyID             string
	OrgID                  string
	Title                  string
	Status                 string
	Deadline               *time.Time // nil means no deadline
	CurrentEscalationLevel int
	EscalatedAt            *time.Time // nil means never escalated
}

// TicketFilters contains filter options for fetching escalation candidates.
type TicketFilters struct {
	Limit     int
	DueBefore *time.Time // only tickets whose deadline is at or before this instant
}

// PolicyRepository defines the secondary port for escalation policy reads.
// Policies are authored elsewhere and read-only here.
type PolicyRepository interface {
	// FindTiers returns the tiers stored for a scope, ascending by level.
	// An empty slice means no policy exists for the scope.
	FindTiers(ctx context.Context, scope PolicyScope) ([]*TierRecord, error)
}

// PolicyScope identifies the owner of a policy. Both IDs empty is the global scope.
type PolicyScope struct {
	PropertyID string
	PlanID     string
}

// TierRecord represents one escalation tier as stored in persistence.
type TierRecord struct {
	ID                 string
	PropertyID         string // Empty string means null
	PlanID             string // Empty string means null
	Level              int
	Role               string
	HoursAfterDeadline float64
}

// OrgPlanRepository defines the secondary port for organization subscription lookups.
type OrgPlanRepository interface {
	// PlanNameForOrg returns the subscription plan name of an organization.
	// found is false when the organization has no plan.
	PlanNameForOrg(ctx context.Context, orgID string) (name string, found bool, err error)

	// PlanIDForName returns the ID of the plan with the given name.
	PlanIDForName(ctx context.Context, name string) (id string, found bool, err error)
}

// EscalationEventRepository defines the secondary port for the escalation ledger.
// Events are append-only: there are no update or delete operations.
type EscalationEventRepository interface {
	// InsertIfAbsent atomically records the event unless (ticket_id, level)
	// already exists. applied is false when an entry was already present.
	InsertIfAbsent(ctx context.Context, event *EscalationEventRecord) (applied bool, err error)

	// Exists reports whether a ledger entry exists for (ticketID, level).
	Exists(ctx context.Context, ticketID string, level int) (bool, error)

	// ListByTicket returns a ticket's ledger entries ascending by level.
	ListByTicket(ctx context.Context, ticketID string) ([]*EscalationEventRecord, error)

	// MaxLevel returns the highest recorded level for a ticket, or 0.
	MaxLevel(ctx context.Context, ticketID string) (int, error)
}

// EscalationEventRecord represents a ledger entry as stored in persistence.
type EscalationEventRecord struct {
	ID          string
	TicketID    string
	OrgID       string
	PropertyID  string
	Level       int
	Role        string
	TriggeredAt time.Time
}

// UserRepository defines the secondary port for notification recipient lookups.
type UserRepository interface {
	// ListByRole returns active users holding role. An empty orgID matches
	// users of every organization.
	ListByRole(ctx context.Context, role, orgID string) ([]*UserRecord, error)
}

// UserRecord represents a platform user as stored in persistence.
type UserRecord struct {
	ID    string
	OrgID string
	Name  string
	Email string // Empty string means null
	Role  string
}

// NotificationRepository defines the secondary port for in-app notification rows.
type NotificationRepository interface {
	// Create persists a new in-app notification.
	Create(ctx context.Context, notification *NotificationRecord) error

	// ListByUser returns a user's notifications, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*NotificationRecord, error)
}

// NotificationRecord represents an in-app notification as stored in persistence.
type NotificationRecord struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Metadata  map[string]string
	Read      bool
	CreatedAt time.Time
}
