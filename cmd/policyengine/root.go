package main

import (
	"github.com/spf13/cobra"

	_ "github.com/policyforge/engine/internal/gates"
)

// Execute builds and runs the policyengine root command. The blank gates
// import registers every built-in handler (spec §4.1) before any subcommand
// touches the registry — mirroring how the teacher's cmd/orc relies on its
// own init()-populated registries being wired by the time cli.Execute runs.
func Execute() error {
	root := &cobra.Command{
		Use:           "policyengine",
		Short:         "Inspect and dry-run the PR policy engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newGatesCmd())
	root.AddCommand(newEvaluateCmd())
	return root.Execute()
}
