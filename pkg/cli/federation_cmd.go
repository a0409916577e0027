package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFederationCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "federation",
		Short: "Inspect and drive the federation handshake",
	}
	cmd.AddCommand(newFederationStatusCmd(client))
	cmd.AddCommand(newFederationNegotiateCmd(client))
	cmd.AddCommand(newFederationTeardownCmd(client))
	return cmd
}

func newFederationStatusCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local side's federation state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]interface{}
			if err := client().Get("/v1/federation", &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newFederationNegotiateCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "negotiate",
		Short: "Run one negotiation pass immediately",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]interface{}
			if err := client().Post("/v1/federation/negotiate", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newFederationTeardownCmd(client func() *Client) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Remove the local bootstrap record and reset the handshake",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to tear down federation without --yes")
			}
			if err := client().Delete("/v1/federation"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "federation torn down")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the teardown")
	return cmd
}
