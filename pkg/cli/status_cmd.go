package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the summary of the most recent tick",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]interface{}
			if err := client().Get("/v1/status", &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newTickCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one reconciliation tick now and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]interface{}
			if err := client().Post("/v1/reconcile", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
