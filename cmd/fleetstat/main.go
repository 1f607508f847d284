// Package main provides the fleetstat CLI: fleet analytics aggregation over
// the remote device service, backed by a Redis snapshot cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	quiet      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "fleetstat",
		Short: "Fleet analytics for grouped addresses and their devices",
		Long: `fleetstat aggregates device counts across every address of a group.

Commands:
  groups      List the groups visible to the token
  addresses   Show a page of a group's addresses
  analyze     Aggregate device counts for a group
  inverters   List the steerable solar inverters of a group
  devices     List the devices of one category across a group
  schedule    Create a schedule on every steerable inverter of a group
  inspect     Show a Sparky or the devices of one address
  serve       Run the HTTP server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default .fleetstat.yaml in . or $HOME)")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")

	rootCmd.AddCommand(
		newGroupsCommand(opts),
		newAddressesCommand(opts),
		newAnalyzeCommand(opts),
		newInvertersCommand(opts),
		newDevicesCommand(opts),
		newScheduleCommand(opts),
		newInspectCommand(opts),
		newServeCommand(opts),
	)

	return rootCmd
}
