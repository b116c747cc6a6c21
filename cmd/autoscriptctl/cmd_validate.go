package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autoscript/runtime/internal/autoscript/validate"
	"github.com/autoscript/runtime/internal/platform/config"
)

func newValidateCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Statically validate a script without starting a runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.PersistentFlags())
			if err != nil {
				return err
			}

			script, err := loadScript(cfg.ScriptPath)
			if err != nil {
				return err
			}

			result := validate.Validate(script)
			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "topological order: %v\n", result.TopologicalOrder)

			if !result.OK {
				return fmt.Errorf("validate: %s has %d error(s)", cfg.ScriptPath, len(result.Errors))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d subscriptions, %d operations)\n", cfg.ScriptPath, len(script.Subscriptions), len(script.Operations))
			return nil
		},
	}
}
