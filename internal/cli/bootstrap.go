// Package cli provides CLI commands for leasehold.
package cli

import (
	gocontext "context"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/example/leasehold/internal/config"
	"github.com/example/leasehold/internal/ctxutil"
	"github.com/example/leasehold/internal/logging"
	"github.com/example/leasehold/internal/wire"
)

// globalActorID stores the actor for the current CLI invocation.
// Set once at startup by Bootstrap.
var globalActorID string

// restoreLogger undoes logging.Setup at exit.
var restoreLogger = func() {}

// Bootstrap loads configuration, sets up logging and configures wire.
// It is the root command's PersistentPreRunE.
func Bootstrap(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}

	logger, restore, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	restoreLogger = restore

	wire.Configure(cfg, logger)
	globalActorID = detectActor()
	return nil
}

// Shutdown closes singletons and flushes the logger.
// It is the root command's PersistentPostRun.
func Shutdown(cmd *cobra.Command, args []string) {
	if err := wire.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: shutdown: %v\n", err)
	}
	restoreLogger()
}

func detectActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}

// GetActorID returns the stored actor ID from CLI startup.
// Returns empty string if Bootstrap was not called.
func GetActorID() string {
	return globalActorID
}

// NewContext creates a context.Background() with the current actor ID embedded.
// CLI commands should use this instead of context.Background() directly.
func NewContext() gocontext.Context {
	ctx := gocontext.Background()
	if globalActorID != "" {
		return ctxutil.WithActorID(ctx, globalActorID)
	}
	return ctx
}
