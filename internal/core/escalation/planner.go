package escalation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/example/leasehold/internal/core/effects"
)

// OverdueHours returns the elapsed time past deadline in hours.
// Negative values mean the ticket is not yet due.
func OverdueHours(now, deadline time.Time) float64 {
	return now.Sub(deadline).Hours()
}

// CrossedTiers returns every tier whose threshold overdueHours has reached,
// in ascending level order. Whether a crossed tier still needs applying is
// decided by the ledger, not here.
func CrossedTiers(tiers []Tier, overdueHours float64) []Tier {
	if overdueHours < 0 {
		return nil
	}
	var crossed []Tier
	for _, t := range SortTiers(tiers) {
		if overdueHours >= t.HoursAfterDeadline {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// HighestLevel returns the largest level in tiers, or 0 when empty.
func HighestLevel(tiers []Tier) int {
	highest := 0
	for _, t := range tiers {
		if t.Level > highest {
			highest = t.Level
		}
	}
	return highest
}

// NotificationTitle is the headline sent to the role a tier escalates to.
func NotificationTitle(level int) string {
	return fmt.Sprintf("Service ticket escalated to level %d", level)
}

// NotificationMessage is the body sent alongside NotificationTitle.
func NotificationMessage(ticketID string, tier Tier, overdueHours float64) string {
	return fmt.Sprintf("Ticket %s is %.1f hours past its deadline and now requires %s attention.", ticketID, overdueHours, tier.Role)
}

// TicketPlanInput contains pre-fetched data for escalating one ticket.
type TicketPlanInput struct {
	TicketID   string
	OrgID      string
	PropertyID string
	Deadline   time.Time
	Now        time.Time
	Tiers      []Tier
	// ScopeToOrg limits notification recipients to the ticket's organization.
	ScopeToOrg bool
}

// TicketPlan represents the planned escalation steps for one ticket.
type TicketPlan struct {
	TicketID     string
	OverdueHours float64
	Steps        []effects.EscalationStepEffect
	// Log describes the crossed tiers; set only when Steps is non-empty.
	Log *effects.LogEffect
}

// Effects returns the plan log followed by every step, lowest level first.
func (p TicketPlan) Effects() []effects.Effect {
	result := make([]effects.Effect, 0, len(p.Steps)+1)
	if p.Log != nil {
		result = append(result, *p.Log)
	}
	for _, s := range p.Steps {
		result = append(result, s)
	}
	return result
}

// PlanTicketEscalation creates one step per crossed tier. Each step records the
// tier in the ledger and, only if that record is new, updates the ticket
// summary, publishes the event and notifies the tier's role.
func PlanTicketEscalation(input TicketPlanInput) TicketPlan {
	overdue := OverdueHours(input.Now, input.Deadline)
	plan := TicketPlan{TicketID: input.TicketID, OverdueHours: overdue}

	notifyOrg := ""
	if input.ScopeToOrg {
		notifyOrg = input.OrgID
	}

	crossed := CrossedTiers(input.Tiers, overdue)
	if len(crossed) == 0 {
		return plan
	}

	levels := make([]int, 0, len(crossed))
	for _, tier := range crossed {
		levels = append(levels, tier.Level)
	}
	plan.Log = &effects.LogEffect{
		Level:   "debug",
		Message: "escalation tiers crossed",
		Fields: map[string]any{
			"ticket_id":      input.TicketID,
			"overdue_hours":  overdue,
			"crossed_levels": levels,
			"highest_level":  HighestLevel(crossed),
		},
	}

	for _, tier := range crossed {
		ledger := effects.LedgerInsertEffect{
			TicketID:    input.TicketID,
			OrgID:       input.OrgID,
			PropertyID:  input.PropertyID,
			Level:       tier.Level,
			Role:        tier.Role,
			TriggeredAt: input.Now,
		}
		plan.Steps = append(plan.Steps, effects.EscalationStepEffect{
			Ledger: ledger,
			FollowUps: []effects.Effect{
				effects.SummaryUpdateEffect{
					TicketID:    input.TicketID,
					Level:       tier.Level,
					TriggeredAt: input.Now,
				},
				effects.PublishEventEffect{Event: ledger},
				effects.NotifyRoleEffect{
					Role:    tier.Role,
					OrgID:   notifyOrg,
					Title:   NotificationTitle(tier.Level),
					Message: NotificationMessage(input.TicketID, tier, overdue),
					Metadata: map[string]string{
						"ticket_id":     input.TicketID,
						"property_id":   input.PropertyID,
						"org_id":        input.OrgID,
						"level":         strconv.Itoa(tier.Level),
						"overdue_hours": strconv.FormatFloat(overdue, 'f', 1, 64),
					},
				},
			},
		})
	}

	return plan
}
