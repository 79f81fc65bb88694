// Command opsrag is the entry point for the opsrag incident retrieval engine.
// It provides a CLI interface (via Cobra) for loading, exporting, and
// searching incident and runbook collections, and an optional HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/dv8r/opsrag-go/cmd/opsrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
