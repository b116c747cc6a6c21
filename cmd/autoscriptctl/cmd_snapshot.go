package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autoscript/runtime/internal/autoscript/runner"
	"github.com/autoscript/runtime/internal/platform/config"
)

func newSnapshotCommand(root *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect persisted run snapshots",
	}
	cmd.AddCommand(newSnapshotInspectCommand(root))
	return cmd
}

func newSnapshotInspectCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <run-id>",
		Short: "Print a persisted snapshot as formatted JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.PersistentFlags())
			if err != nil {
				return err
			}

			store, err := runner.NewSnapshotStore(cfg.JobStoreDir)
			if err != nil {
				return err
			}

			snap, err := store.Load(args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("snapshot inspect: marshal: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
