package cli

import (
	"github.com/spf13/cobra"
)

// RootCmd builds the opsflow command tree.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opsflow",
		Short: "Workflow execution engine",
		Long:  "opsflow runs declarative workflow definitions: durable executions, retries, and lifecycle control over HTTP.",
	}
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	cmd.PersistentFlags().Bool("log-source", false, "Include source locations in logs")
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(validateCmd())
	return cmd
}
