// Package cli implements the idflow operator CLI: tick triggering, status,
// rule validation, and federation inspection against a running engine.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var host, token string

	rootCmd := &cobra.Command{
		Use:           "idflow",
		Short:         "Attribute-driven group membership engine CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("IDFLOW_HOST"); v != "" {
					host = v
				}
			}
			if !cmd.Flags().Changed("token") {
				if v := os.Getenv("IDFLOW_TOKEN"); v != "" {
					token = v
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "Engine base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for the admin API")

	client := func() *Client { return NewClient(host, token) }

	rootCmd.AddCommand(newStatusCmd(client))
	rootCmd.AddCommand(newTickCmd(client))
	rootCmd.AddCommand(newRulesCmd(client))
	rootCmd.AddCommand(newFederationCmd(client))

	return rootCmd
}
