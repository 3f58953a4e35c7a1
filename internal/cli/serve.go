package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/leasehold/internal/api"
	"github.com/example/leasehold/internal/wire"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trigger and read API",
	Long: `Serve the HTTP API:

  POST /v1/escalations/run            perform one run (bearer token when configured)
  GET  /v1/tickets/:id/escalations    ledger entries for a ticket
  GET  /v1/policies/resolve           policy preview
  GET  /healthz, /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := wire.Config()
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		svc, err := wire.EscalationService()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(NewContext(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := api.NewServer(svc, cfg.Server, wire.Logger(), cfg.Log.Development)
		return server.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return serveCmd
}
