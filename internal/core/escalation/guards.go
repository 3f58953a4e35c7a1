package escalation

import (
	"fmt"
	"strings"
	"time"
)

// Ticket statuses that end escalation permanently.
const (
	StatusCompleted = "completed"
	StatusClosed    = "closed"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// EligibilityContext provides context for the escalation eligibility guard.
type EligibilityContext struct {
	TicketID string
	Status   string
	Deadline *time.Time
	Now      time.Time
}

// IsTerminalStatus reports whether a ticket status ends its escalation ladder.
func IsTerminalStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return s == StatusCompleted || s == StatusClosed
}

// CanEscalate evaluates whether a ticket may be escalated at ctx.Now.
// Rules:
// - Ticket must not be completed or closed
// - Ticket must have a deadline
// - Deadline must have passed
func CanEscalate(ctx EligibilityContext) GuardResult {
	if IsTerminalStatus(ctx.Status) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("ticket %s is %s", ctx.TicketID, strings.ToLower(ctx.Status)),
		}
	}

	if ctx.Deadline == nil {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("ticket %s has no deadline", ctx.TicketID),
		}
	}

	if OverdueHours(ctx.Now, *ctx.Deadline) < 0 {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("ticket %s is not due until %s", ctx.TicketID, ctx.Deadline.UTC().Format(time.RFC3339)),
		}
	}

	return GuardResult{Allowed: true}
}
