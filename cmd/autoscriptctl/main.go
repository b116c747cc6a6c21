// Command autoscriptctl runs, validates, and inspects snapshots of an
// autoscript document: a declarative, event-driven script that drives
// browser automation by matching DOM subscription events against a table
// of operations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoscriptctl",
		Short: "Run and inspect autoscript DOM-automation scripts",
		Long: `autoscriptctl drives the autoscript runtime: a scheduler that matches
DOM subscription events against a script's operations under dependency,
condition, pacing, retry, and failure-impact rules.`,
		SilenceUsage: true,
	}

	// Flag names intentionally match RuntimeConfig's mapstructure keys
	// (underscores, not dashes) so viper.BindPFlags binds them directly.
	root.PersistentFlags().String("script_path", "", "path to the script YAML file (overrides config/env)")
	root.PersistentFlags().String("watcher", "", "watcher kind: mock|html|ws (overrides config/env)")
	root.PersistentFlags().String("watcher_url", "", "URL the html/ws watcher polls or dials")
	root.PersistentFlags().Int64("watcher_poll_ms", 0, "poll interval in milliseconds for the html watcher")
	root.PersistentFlags().Bool("metrics_enabled", false, "serve Prometheus metrics while running")
	root.PersistentFlags().String("metrics_addr", "", "address the metrics server listens on")
	root.PersistentFlags().Bool("tracing_enabled", false, "wrap operation runs in OpenTelemetry spans")
	root.PersistentFlags().String("log_level", "", "log level: debug|info|warn|error")
	root.PersistentFlags().String("job_store_dir", "", "directory snapshot inspect reads persisted runs from")

	root.AddCommand(newRunCommand(root))
	root.AddCommand(newValidateCommand(root))
	root.AddCommand(newSnapshotCommand(root))
	return root
}
