package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flashdeck-backend/internal/cardstream"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Finalize a saved model response and print its flashcards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			drafts, err := cardstream.Finalize(string(raw))
			if err != nil {
				return err
			}
			for i := range drafts {
				drafts[i] = drafts[i].Normalize()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(drafts)
		},
	}
}
