package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"flashdeck-backend/internal/cardstream"
)

const (
	DeckStatusActive  = "active"
	DeckStatusDeleted = "deleted"
)

type Deck struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	CardCount   int       `json:"card_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DeckWithCards struct {
	Deck
	Cards []Card `json:"cards"`
}

type Card struct {
	ID        uuid.UUID `json:"id"`
	DeckID    uuid.UUID `json:"deck_id"`
	UserID    uuid.UUID `json:"user_id"`
	Front     string    `json:"front"`
	Back      string    `json:"back"`
	FrontRich *string   `json:"front_rich,omitempty"`
	BackRich  *string   `json:"back_rich,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardFromDraft builds an unsaved card for deckID from a generated draft.
func CardFromDraft(deckID, userID uuid.UUID, d cardstream.FlashcardDraft) Card {
	d = d.Normalize()
	return Card{
		DeckID:    deckID,
		UserID:    userID,
		Front:     d.Front,
		Back:      d.Back,
		FrontRich: d.FrontRich,
		BackRich:  d.BackRich,
	}
}

type CreateDeckRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type UpdateDeckRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type UpdateCardRequest struct {
	Front     *string `json:"front" validate:"omitempty,min=1"`
	Back      *string `json:"back" validate:"omitempty,min=1"`
	FrontRich *string `json:"front_rich"`
	BackRich  *string `json:"back_rich"`
}

// Sanitized returns req with its rich text fields run through the rich-text allowlist.
func (req UpdateCardRequest) Sanitized() UpdateCardRequest {
	if req.FrontRich != nil {
		v := cardstream.SanitizeRich(*req.FrontRich)
		req.FrontRich = &v
	}
	if req.BackRich != nil {
		v := cardstream.SanitizeRich(*req.BackRich)
		req.BackRich = &v
	}
	return req
}

type SaveFlashcardsRequest struct {
	DeckID     uuid.UUID                   `json:"deck_id" validate:"required"`
	Flashcards []cardstream.FlashcardDraft `json:"flashcards" validate:"required,min=1,max=500"`
}

// Question count modes accepted by generation requests.
const (
	QuestionCountExact = "exact"
	QuestionCountAuto  = "auto"
	QuestionCountMax   = "max"
)

// QuestionCount is either a fixed number of cards or one of "auto" / "max".
type QuestionCount struct {
	Mode string
	N    int
}

func (q *QuestionCount) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*q = QuestionCount{Mode: QuestionCountExact, N: n}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("question_count must be a number, \"auto\" or \"max\"")
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", QuestionCountAuto:
		*q = QuestionCount{Mode: QuestionCountAuto}
	case QuestionCountMax:
		*q = QuestionCount{Mode: QuestionCountMax}
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("question_count must be a number, \"auto\" or \"max\"")
		}
		*q = QuestionCount{Mode: QuestionCountExact, N: n}
	}
	return nil
}

func (q QuestionCount) MarshalJSON() ([]byte, error) {
	if q.Mode == QuestionCountExact {
		return json.Marshal(q.N)
	}
	if q.Mode == "" {
		return json.Marshal(QuestionCountAuto)
	}
	return json.Marshal(q.Mode)
}

// GenerationOptions shape the flashcard prompt.
type GenerationOptions struct {
	QuestionCount QuestionCount `json:"question_count"`
	Range         string        `json:"range" validate:"max=500"`
	Complexity    string        `json:"complexity" validate:"omitempty,oneof=simple medium detailed"`
	Language      string        `json:"language" validate:"omitempty,min=2,max=10"`
}

// WithDefaults fills unset options. Language defaults to Japanese.
func (o GenerationOptions) WithDefaults() GenerationOptions {
	if o.QuestionCount.Mode == "" {
		o.QuestionCount.Mode = QuestionCountAuto
	}
	if o.Complexity == "" {
		o.Complexity = "medium"
	}
	if o.Language == "" {
		o.Language = "ja"
	}
	return o
}

type GenerateFlashcardsRequest struct {
	Text string `json:"text" validate:"required,max=200000"`
	GenerationOptions
}

type GenerateFlashcardsAsyncRequest struct {
	SourceID  uuid.UUID  `json:"source_id" validate:"required"`
	DeckID    *uuid.UUID `json:"deck_id"`
	DeckTitle string     `json:"deck_title" validate:"max=200"`
	GenerationOptions
}

// FlashcardJobConfig is the config_json stored on flashcard-generation jobs.
type FlashcardJobConfig struct {
	SourceID uuid.UUID         `json:"source_id"`
	DeckID   uuid.UUID         `json:"deck_id"`
	Options  GenerationOptions `json:"options"`
}
