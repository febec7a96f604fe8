package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/episim/internal/config"
)

// newValidateCmd creates the `validate` command.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file>",
		Short: "Validates a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := config.LoadScenario(args[0])
			if err != nil {
				return err
			}
			if err := scenario.Pars.Validate(); err != nil {
				return fmt.Errorf("scenario parameters invalid: %w", err)
			}
			if _, err := scenario.Hooks(); err != nil {
				return fmt.Errorf("scenario interventions invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: scenario %q, %d strain(s), %d intervention(s)\n",
				args[0], scenario.Name, len(scenario.Strains), len(scenario.Interventions))
			return nil
		},
	}
}
