package models

import (
	"time"

	"github.com/google/uuid"

	"flashdeck-backend/internal/review"
)

const (
	StudyModeFlashcard = "flashcard"
	StudyModeQuiz      = "quiz"
	StudyModeTrueFalse = "truefalse"
)

const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

type StudySession struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"user_id"`
	DeckIDs    []uuid.UUID `json:"deck_ids"`
	Mode       string      `json:"mode"`
	Status     string      `json:"status"`
	TotalCards int         `json:"total_cards"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
}

type StartSessionRequest struct {
	DeckIDs []uuid.UUID `json:"deck_ids" validate:"required,min=1,max=50"`
	Mode    string      `json:"mode" validate:"required,oneof=flashcard quiz truefalse"`
}

type StudyLog struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	CardID      uuid.UUID `json:"card_id"`
	Correct     bool      `json:"correct"`
	TimeTakenMs int       `json:"time_taken"`
	Difficulty  *string   `json:"difficulty,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitAnswerRequest carries either correct, difficulty, or both. When correct is
// missing it is derived from the difficulty bucket.
type SubmitAnswerRequest struct {
	SessionID   uuid.UUID `json:"session_id" validate:"required"`
	CardID      uuid.UUID `json:"card_id" validate:"required"`
	Correct     *bool     `json:"correct"`
	TimeTakenMs int       `json:"time_taken" validate:"gte=0"`
	Difficulty  *string   `json:"difficulty" validate:"omitempty,oneof=ultra_easy easy hard forgot"`
}

// CardStats is one user's review record for one card.
type CardStats struct {
	UserID uuid.UUID `json:"user_id"`
	CardID uuid.UUID `json:"card_id"`
	review.CardReviewStats
}

type SubmitAnswerResponse struct {
	Log   StudyLog  `json:"log"`
	Stats CardStats `json:"stats"`
}

type StudyCard struct {
	Card
	Stats *review.CardReviewStats `json:"stats,omitempty"`
}

type SessionResult struct {
	Session        StudySession `json:"session"`
	CorrectCount   int          `json:"correct_count"`
	IncorrectCount int          `json:"incorrect_count"`
	Accuracy       float64      `json:"accuracy"`
	Logs           []StudyLog   `json:"logs"`
}

type CompleteSessionResponse struct {
	Session StudySession  `json:"session"`
	Streak  review.Streak `json:"streak"`
}

type Choice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type CardChoices struct {
	CardID  uuid.UUID `json:"card_id"`
	Choices []Choice  `json:"choices"`
}

type TrueFalseStatement struct {
	Text   string `json:"text"`
	IsTrue bool   `json:"is_true"`
}

type CardStatements struct {
	CardID     uuid.UUID            `json:"card_id"`
	Statements []TrueFalseStatement `json:"statements"`
}

type CardBatchRequest struct {
	CardIDs  []uuid.UUID `json:"card_ids" validate:"required,min=1,max=50"`
	Language string      `json:"language" validate:"omitempty,min=2,max=10"`
}
