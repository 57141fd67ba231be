package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flashdeck-backend/internal/review"
)

func newScheduleCmd() *cobra.Command {
	var (
		correct      bool
		first        bool
		difficulty   float64
		correctCount int
		wrongCount   int
		at           string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the review stats after one answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}

			var prev *review.CardReviewStats
			if !first {
				prev = &review.CardReviewStats{
					CorrectCount: correctCount,
					WrongCount:   wrongCount,
					Difficulty:   review.Clamp01(difficulty),
				}
			}

			next := review.Apply(prev, correct, now)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(next)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&correct, "correct", false, "the answer was correct")
	f.BoolVar(&first, "first", false, "the card has never been answered")
	f.Float64Var(&difficulty, "difficulty", 0.5, "current difficulty")
	f.IntVar(&correctCount, "correct-count", 0, "current correct count")
	f.IntVar(&wrongCount, "wrong-count", 0, "current wrong count")
	f.StringVar(&at, "at", "", "answer time (RFC 3339), defaults to now")
	return cmd
}
