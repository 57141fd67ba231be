package main

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"flashdeck-backend/internal/cardstream"
)

func newReplayCmd() *cobra.Command {
	var chunk int

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed a saved response to the streaming extractor chunk by chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chunk < 1 {
				return errors.New("--chunk must be at least 1")
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			out := cmd.OutOrStdout()
			ex := cardstream.NewExtractor()
			buf := string(raw)
			for pos := 0; ; {
				end := runeCut(buf, pos, pos+chunk)
				snap := ex.Update(buf[:end])
				fmt.Fprintf(out, "bytes=%d completed=%d current=%s front=%q\n",
					end, len(snap.Completed), snap.Current.Status, snap.Current.Front)
				if end == len(buf) {
					break
				}
				pos = end
			}

			drafts, err := cardstream.Finalize(buf)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "final cards=%d\n", len(drafts))
			return nil
		},
	}
	cmd.Flags().IntVar(&chunk, "chunk", 64, "bytes appended per update")
	return cmd
}

// runeCut moves end back to the start of the rune it falls in. When that would not
// get past prev it moves forward instead, so every prefix grows.
func runeCut(buf string, prev, end int) int {
	if end >= len(buf) {
		return len(buf)
	}
	cut := end
	for cut > prev && !utf8.RuneStart(buf[cut]) {
		cut--
	}
	if cut > prev {
		return cut
	}
	for end < len(buf) && !utf8.RuneStart(buf[end]) {
		end++
	}
	return end
}
