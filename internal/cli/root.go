// Package cli implements eventctl, the operator tool for the event
// reservation service.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the eventctl root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "eventctl",
		Short:         "Operate the event reservation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewTokenCommand())
	return cmd
}
