package review

import "time"

// Streak counts consecutive calendar days (UTC) with a completed study session.
type Streak struct {
	Current       int        `json:"current_streak"`
	Longest       int        `json:"longest_streak"`
	LastStudyDate *time.Time `json:"last_study_date,omitempty"`
}

// AdvanceStreak records a completed session at now. A second session on the same
// day leaves the streak unchanged and a gap of more than one day restarts it.
func AdvanceStreak(prev Streak, now time.Time) Streak {
	today := truncateDay(now)
	next := prev

	switch {
	case prev.LastStudyDate == nil:
		next.Current = 1
	default:
		last := truncateDay(*prev.LastStudyDate)
		switch days := int(today.Sub(last).Hours() / 24); {
		case days <= 0:
			if next.Current == 0 {
				next.Current = 1
			}
		case days == 1:
			next.Current = prev.Current + 1
		default:
			next.Current = 1
		}
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	if prev.LastStudyDate == nil || today.After(truncateDay(*prev.LastStudyDate)) {
		next.LastStudyDate = &today
	}
	return next
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
