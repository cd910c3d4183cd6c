package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/policyforge/engine/internal/registry"
)

// newGatesCmd mirrors the teacher's cmd_gates.go: a parent command with a
// single listing subcommand, grounded on the same tabwriter table style.
func newGatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gates",
		Short: "Inspect registered gate types",
	}
	cmd.AddCommand(newGatesListCmd())
	return cmd
}

func newGatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every gate type the registry knows how to run",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := registry.Types()
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "GATE TYPE")
			for _, t := range types {
				fmt.Fprintln(w, t)
			}
			return w.Flush()
		},
	}
}
