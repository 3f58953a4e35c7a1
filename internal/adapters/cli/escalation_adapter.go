// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/example/leasehold/internal/ports/primary"
)

// EscalationAdapter is a thin adapter that translates CLI operations to EscalationService calls.
// It depends only on the EscalationService interface, enabling easy testing with mocks.
type EscalationAdapter struct {
	service primary.EscalationService
	out     io.Writer
}

// NewEscalationAdapter creates a new EscalationAdapter with the given service.
func NewEscalationAdapter(service primary.EscalationService, out io.Writer) *EscalationAdapter {
	return &EscalationAdapter{
		service: service,
		out:     out,
	}
}

// Run performs one escalation run and prints its summary.
func (a *EscalationAdapter) Run(ctx context.Context, req primary.RunRequest, asJSON bool) (*primary.RunSummary, error) {
	summary, err := a.service.RunEscalations(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("escalation run failed: %w", err)
	}

	if asJSON {
		return summary, a.writeJSON(summary)
	}

	if summary.Contended {
		fmt.Fprintf(a.out, "%s Another run holds the lease; nothing evaluated (run %s)\n",
			color.New(color.FgYellow).Sprint("⚠"), summary.RunID)
		return summary, nil
	}

	mark := color.New(color.FgGreen).Sprint("✓")
	if summary.Failed > 0 || summary.TimedOut {
		mark = color.New(color.FgYellow).Sprint("⚠")
	}
	fmt.Fprintf(a.out, "%s Escalation run %s finished in %s\n", mark, summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(a.out, "  Processed: %d tickets\n", summary.Processed)
	fmt.Fprintf(a.out, "  Escalated: %d tiers across %d tickets\n", summary.Escalated, summary.Tickets)
	if summary.Failed > 0 {
		fmt.Fprintf(a.out, "  Failed:    %s\n", color.New(color.FgRed).Sprintf("%d tickets (see logs)", summary.Failed))
	}
	if summary.Truncated {
		fmt.Fprintln(a.out, "  Batch cap reached; more overdue tickets may be waiting")
	}
	if summary.TimedOut {
		fmt.Fprintln(a.out, "  Run budget expired before every ticket was admitted")
	}
	return summary, nil
}

// Events lists the ledger entries for a ticket.
func (a *EscalationAdapter) Events(ctx context.Context, ticketID string, asJSON bool) error {
	escalations, err := a.service.ListEscalations(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("failed to list escalations: %w", err)
	}

	if asJSON {
		return a.writeJSON(escalations)
	}

	if len(escalations) == 0 {
		fmt.Fprintf(a.out, "No escalations recorded for %s\n", ticketID)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tROLE\tTRIGGERED\tID")
	fmt.Fprintln(w, "-----\t----\t---------\t--")
	for _, e := range escalations {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Level, e.Role, e.TriggeredAt.UTC().Format(time.RFC3339), e.ID)
	}
	return w.Flush()
}

// ResolvePolicy prints the ladder that would govern a ticket.
func (a *EscalationAdapter) ResolvePolicy(ctx context.Context, query primary.PolicyQuery, asJSON bool) error {
	policy, err := a.service.ResolvePolicy(ctx, query)
	if err != nil {
		return err
	}

	if asJSON {
		return a.writeJSON(policy)
	}

	fmt.Fprintf(a.out, "Policy: %s\n", color.New(color.FgCyan).Sprint(policy.Scope))
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tROLE\tHOURS AFTER DEADLINE")
	for _, t := range policy.Tiers {
		fmt.Fprintf(w, "%d\t%s\t%g\n", t.Level, t.Role, t.HoursAfterDeadline)
	}
	return w.Flush()
}

func (a *EscalationAdapter) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
