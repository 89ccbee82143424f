// Command jobcrawl is the CLI entry point wrapping the ingestion pipeline
// library behind spf13/cobra subcommands, grounded on the teacher's
// cmd/root.go PersistentPreRunE/PersistentPostRun lifecycle.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
