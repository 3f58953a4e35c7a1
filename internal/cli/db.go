package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/wire"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the leasehold database",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		// wire.Database applies the schema on first use
		if _, err := wire.Database(); err != nil {
			return err
		}
		cfg := wire.Config()
		fmt.Printf("%s Database ready (%s)\n", color.New(color.FgGreen).Sprint("✓"), cfg.Database.Driver)
		return nil
	},
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert development fixtures",
	Long:  "Insert plans, organizations, policies, users and tickets at several escalation stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := wire.Database()
		if err != nil {
			return err
		}
		if err := db.SeedFixtures(database, time.Now()); err != nil {
			return fmt.Errorf("failed to seed fixtures: %w", err)
		}
		fmt.Printf("%s Seeded development fixtures\n", color.New(color.FgGreen).Sprint("✓"))
		return nil
	},
}

var dbResyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Re-derive ticket escalation levels from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		tickets, err := wire.TicketRepository()
		if err != nil {
			return err
		}
		n, err := tickets.ResyncEscalationSummary(NewContext())
		if err != nil {
			return fmt.Errorf("failed to resync escalation summaries: %w", err)
		}
		if n == 0 {
			fmt.Println("All ticket escalation levels match the ledger")
			return nil
		}
		fmt.Printf("%s Repaired %d tickets\n", color.New(color.FgYellow).Sprint("✓"), n)
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbSeedCmd)
	dbCmd.AddCommand(dbResyncCmd)
}

// DBCmd returns the db command
func DBCmd() *cobra.Command {
	return dbCmd
}
