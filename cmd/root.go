// Package cmd defines and implements the CLI commands for the
// edgar-harvester executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edgar-harvester",
		Short: "Incremental harvester for the EDGAR full-text filing archive.",
		Long: `edgar-harvester downloads quarterly filing indexes from the EDGAR
archive, diffs them against its durable processed set, and crawls only
the filings it has not seen before, writing metadata to a ledger and
documents to a content store. Runs are resumable: interrupt it at any
point and the next run picks up where it left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses env vars with the EDGAR_ prefix)")

	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point. It installs signal-driven
// cancellation so an interrupt stops the run cleanly mid-flight.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
