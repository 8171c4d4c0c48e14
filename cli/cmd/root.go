// Package cmd assembles the dextctl command tree.
package cmd

import (
	"time"

	"github.com/edgelesssys/dextmanager/cli/internal/cmd"
	"github.com/spf13/cobra"
)

var globalUsage = `The dextctl CLI enables you to manage the driver extension
of a running activation coordinator

To activate the driver extension and wait for the result, run:

    $ dextctl activate localhost:4433 --wait
`

// Execute starts the CLI
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd returns the dextctl root command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dextctl",
		Short: "Manage the activation of a driver extension",
		Long:  globalUsage,
	}
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Timeout for requests to the coordinator")

	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewActivateCmd())
	rootCmd.AddCommand(cmd.NewDeactivateCmd())
	rootCmd.AddCommand(cmd.NewWatchCmd())
	rootCmd.AddCommand(cmd.NewEventsCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())
	return rootCmd
}
