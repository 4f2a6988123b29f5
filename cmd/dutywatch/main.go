package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createSuperviseCommand(globalFlags),
		createCollectCommand(globalFlags),
		createEventCommand(globalFlags),
		createReasonCommand(globalFlags),
		createSelftestCommand(globalFlags),
		createStatusCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "dutywatch",
		Short: "Worker supervisor with log alerting",
		Long: `Dutywatch keeps a long-running worker script alive, restarts it when it
crashes, exits with the manual-restart code, or when its files change, and
runs a log collector that alerts on new errors.

Examples:
  dutywatch supervise --root /srv/duty
  dutywatch event --reason hotfix
  dutywatch status --api-url=http://127.0.0.1:8787/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to dutywatch.toml (optional)")
	root.PersistentFlags().StringVar(&flags.Root, "root", "", "deployment root directory (overrides the config file)")
	return root
}
