// Package review updates per-card study statistics after an answer.
//
// A correct answer lowers difficulty by 0.1 and
// schedules the card three days out, a wrong answer raises it by 0.1 and schedules it
// for the next day. Apply is pure; callers pass the clock.
package review

import (
	"math"
	"time"
)

const (
	firstCorrectDifficulty = 0.3
	firstWrongDifficulty   = 0.7
	difficultyStep         = 0.1

	CorrectInterval = 3 * 24 * time.Hour
	WrongInterval   = 24 * time.Hour
)

// CardReviewStats is one user's running record for one card.
type CardReviewStats struct {
	CorrectCount  int       `json:"correct_count"`
	WrongCount    int       `json:"wrong_count"`
	Difficulty    float64   `json:"difficulty"`
	DueDate       time.Time `json:"due_date"`
	LastStudyTime time.Time `json:"last_study_time"`
}

// Apply returns the stats after one answer. prev is nil for a card the user has
// never answered.
func Apply(prev *CardReviewStats, correct bool, now time.Time) CardReviewStats {
	next := CardReviewStats{LastStudyTime: now}

	if prev == nil {
		if correct {
			next.CorrectCount = 1
			next.Difficulty = firstCorrectDifficulty
		} else {
			next.WrongCount = 1
			next.Difficulty = firstWrongDifficulty
		}
	} else {
		next.CorrectCount = prev.CorrectCount
		next.WrongCount = prev.WrongCount
		if correct {
			next.CorrectCount++
			next.Difficulty = Clamp01(prev.Difficulty - difficultyStep)
		} else {
			next.WrongCount++
			next.Difficulty = Clamp01(prev.Difficulty + difficultyStep)
		}
	}

	if correct {
		next.DueDate = now.Add(CorrectInterval)
	} else {
		next.DueDate = now.Add(WrongInterval)
	}
	return next
}

// Clamp01 limits v to [0, 1]. Values inside the range are returned untouched, so
// repeated steps keep their float error (0.7 + 0.1 is 0.7999999999999999).
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Bucket is the coarse self-assessment the study UI sends with an answer.
type Bucket string

const (
	BucketUltraEasy Bucket = "ultra_easy"
	BucketEasy      Bucket = "easy"
	BucketHard      Bucket = "hard"
	BucketForgot    Bucket = "forgot"
)

// Valid reports whether b is one of the known buckets.
func (b Bucket) Valid() bool {
	switch b {
	case BucketUltraEasy, BucketEasy, BucketHard, BucketForgot:
		return true
	}
	return false
}

// Outcome maps a bucket to the correct/incorrect signal Apply consumes.
func Outcome(b Bucket) (correct bool, ok bool) {
	switch b {
	case BucketUltraEasy, BucketEasy:
		return true, true
	case BucketHard, BucketForgot:
		return false, true
	}
	return false, false
}
