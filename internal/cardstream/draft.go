package cardstream

import "strings"

// FlashcardDraft is a generated card that has not been persisted yet.
type FlashcardDraft struct {
	Front     string  `json:"front"`
	Back      string  `json:"back"`
	FrontRich *string `json:"frontRich,omitempty"`
	BackRich  *string `json:"backRich,omitempty"`
}

// Status tells how far the model has got with the card currently being written.
type Status string

const (
	StatusFront    Status = "front"
	StatusBack     Status = "back"
	StatusComplete Status = "complete"
)

// CurrentCard is the in-flight draft plus its progress tag.
type CurrentCard struct {
	FlashcardDraft
	Status Status `json:"status"`
}

// Snapshot is the best-known state of a streamed generation.
type Snapshot struct {
	Completed []FlashcardDraft `json:"completed"`
	Current   CurrentCard      `json:"current"`
}

// Drafts returns the completed cards followed by the current one when it is complete.
func (s Snapshot) Drafts() []FlashcardDraft {
	out := make([]FlashcardDraft, 0, len(s.Completed)+1)
	out = append(out, s.Completed...)
	if s.Current.Status == StatusComplete {
		out = append(out, s.Current.FlashcardDraft)
	}
	return out
}

func classify(d FlashcardDraft) Status {
	switch {
	case d.Front != "" && d.Back != "":
		return StatusComplete
	case d.Front != "":
		return StatusBack
	default:
		return StatusFront
	}
}

// Normalize trims the plain fields and restricts rich fields to the allowed tag set.
// Empty rich fields are dropped.
func (d FlashcardDraft) Normalize() FlashcardDraft {
	d.Front = strings.TrimSpace(d.Front)
	d.Back = strings.TrimSpace(d.Back)
	d.FrontRich = sanitizeOptional(d.FrontRich)
	d.BackRich = sanitizeOptional(d.BackRich)
	return d
}

func sanitizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	clean := strings.TrimSpace(SanitizeRich(*s))
	if clean == "" {
		return nil
	}
	return &clean
}
