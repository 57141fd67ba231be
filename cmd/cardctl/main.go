// Command cardctl inspects generated flashcard output and review scheduling offline.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cardctl",
		Short:        "Flashcard generation and review tooling",
		SilenceUsage: true,
	}
	root.AddCommand(newParseCmd(), newReplayCmd(), newScheduleCmd(), newMigrateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
