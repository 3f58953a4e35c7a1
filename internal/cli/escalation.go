package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/leasehold/internal/adapters/cli"
	"github.com/example/leasehold/internal/ports/primary"
	"github.com/example/leasehold/internal/wire"
)

var escalateCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Run and inspect ticket escalations",
	Long:  "Advance overdue tickets through their escalation tiers and inspect the escalation ledger",
}

var escalateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform one escalation run",
	Long: `Evaluate every open ticket with a deadline and apply each tier it has crossed.

Runs are idempotent: tiers already recorded in the ledger are never applied twice,
so it is safe to run this from several schedulers at once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nowFlag, _ := cmd.Flags().GetString("now")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		if limit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		req := primary.RunRequest{Limit: limit}
		if nowFlag != "" {
			now, err := time.Parse(time.RFC3339, nowFlag)
			if err != nil {
				return fmt.Errorf("--now must be RFC3339: %w", err)
			}
			req.Now = now.UTC()
		}

		svc, err := wire.EscalationService()
		if err != nil {
			return err
		}

		summary, err := cliadapter.NewEscalationAdapter(svc, os.Stdout).Run(NewContext(), req, asJSON)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			cmd.SilenceUsage = true
			return fmt.Errorf("%d tickets failed", summary.Failed)
		}
		return nil
	},
}

var escalateEventsCmd = &cobra.Command{
	Use:   "events [ticket-id]",
	Short: "List the escalation ledger for a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		svc, err := wire.EscalationService()
		if err != nil {
			return err
		}
		return cliadapter.NewEscalationAdapter(svc, os.Stdout).Events(NewContext(), args[0], asJSON)
	},
}

func init() {
	// escalate run flags
	escalateRunCmd.Flags().String("now", "", "Evaluate as of this RFC3339 time instead of the current time")
	escalateRunCmd.Flags().IntP("limit", "l", 0, "Maximum tickets to evaluate (0 uses engine.batch_size)")
	escalateRunCmd.Flags().Bool("json", false, "Print the run summary as JSON")

	// escalate events flags
	escalateEventsCmd.Flags().Bool("json", false, "Print ledger entries as JSON")

	// Register subcommands
	escalateCmd.AddCommand(escalateRunCmd)
	escalateCmd.AddCommand(escalateEventsCmd)
}

// EscalateCmd returns the escalate command
func EscalateCmd() *cobra.Command {
	return escalateCmd
}
