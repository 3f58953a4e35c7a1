// Package effects defines effect types as data structures representing I/O operations.
// This is the foundation of the Functional Core / Imperative Shell pattern.
// Effects are pure data - they describe what should happen, not how.
package effects

import "time"

// Effect is the base interface for all effects.
// Effects represent I/O operations as data that can be interpreted by the shell.
type Effect interface {
	// EffectType returns a string identifier for the effect type.
	EffectType() string
}

// LogEffect represents a logging operation.
type LogEffect struct {
	Level   string
	Message string
	Fields  map[string]any
}

func (e LogEffect) EffectType() string { return "log" }

// LedgerInsertEffect records that a tier fired for a ticket.
// It is the durable step of an escalation; everything after it is derived.
type LedgerInsertEffect struct {
	TicketID    string
	OrgID       string
	PropertyID  string
	Level       int
	Role        string
	TriggeredAt time.Time
}

func (e LedgerInsertEffect) EffectType() string { return "ledger_insert" }

// SummaryUpdateEffect refreshes the denormalized escalation fields on a ticket.
type SummaryUpdateEffect struct {
	TicketID    string
	Level       int
	TriggeredAt time.Time
}

func (e SummaryUpdateEffect) EffectType() string { return "summary_update" }

// NotifyRoleEffect fans a notification out to every holder of a role.
type NotifyRoleEffect struct {
	Role     string
	OrgID    string // empty means every organization
	Title    string
	Message  string
	Metadata map[string]string
}

func (e NotifyRoleEffect) EffectType() string { return "notify_role" }

// PublishEventEffect emits an applied escalation to the event stream.
type PublishEventEffect struct {
	Event LedgerInsertEffect
}

func (e PublishEventEffect) EffectType() string { return "publish_event" }

// EscalationStepEffect applies one tier to one ticket.
// FollowUps run only when Ledger was newly written; if the ledger already
// held the entry the whole step is a no-op.
type EscalationStepEffect struct {
	Ledger    LedgerInsertEffect
	FollowUps []Effect
}

func (e EscalationStepEffect) EffectType() string { return "escalation_step" }
