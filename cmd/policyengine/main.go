// Package main provides the entry point for the policyengine CLI: a thin
// inspection and dry-run tool, not the webhook receiver (an explicit
// non-goal, spec §1) — the engine's real trigger is forge events, which a
// deployment wires up separately.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
