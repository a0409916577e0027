package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"idflow/internal/rules"
)

func newRulesCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect, validate, and reload the rule configuration",
	}
	cmd.AddCommand(newRulesShowCmd(client))
	cmd.AddCommand(newRulesValidateCmd())
	cmd.AddCommand(newRulesReloadCmd(client))
	return cmd
}

func newRulesShowCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the engine's live rule configuration summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]interface{}
			if err := client().Get("/v1/rules", &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// newRulesValidateCmd compiles a rule file locally, without an engine. The
// exit code distinguishes a structurally invalid file (error) from one that
// merely carries disabled predicates (warning, exit 0).
func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a rule file locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rules.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %d groups, %d rules\n", len(cfg.Groups), len(cfg.Rules))
			for _, le := range cfg.Set.Errors() {
				fmt.Fprintf(os.Stderr, "warning: rule %s disabled: %s\n", le.RuleID, le.Message)
			}
			return nil
		},
	}
}

func newRulesReloadCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Tell the engine to re-read its rule file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]interface{}
			if err := client().Post("/v1/rules/reload", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
