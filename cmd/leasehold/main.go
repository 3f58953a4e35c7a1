package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/leasehold/internal/cli"
	"github.com/example/leasehold/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "leasehold",
		Short:   "Leasehold - service ticket escalation engine",
		Version: version.String(),
		Long: `Leasehold advances overdue rental service tickets through their escalation
tiers and notifies the roles responsible at each tier.`,
		PersistentPreRunE: cli.Bootstrap,
		PersistentPostRun: cli.Shutdown,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to leasehold.yaml (default $LEASEHOLD_CONFIG)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging to stderr")

	// Add subcommands
	rootCmd.AddCommand(cli.EscalateCmd())
	rootCmd.AddCommand(cli.PolicyCmd())
	rootCmd.AddCommand(cli.DBCmd())
	rootCmd.AddCommand(cli.ServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
