package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flashdeck-backend/internal/cardstream"
	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

const (
	maxExactQuestionCount = 100
	progressInterval      = 500 * time.Millisecond
)

type flashcardGenerator interface {
	GenerateFlashcardsStream(ctx context.Context, text string, opts models.GenerationOptions, onSnapshot func(cardstream.Snapshot)) ([]cardstream.FlashcardDraft, error)
}

type deckStore interface {
	Create(ctx context.Context, d *models.Deck) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Deck, error)
}

type cardWriter interface {
	CreateBatch(ctx context.Context, cards []models.Card) error
}

type sourceReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error)
}

type updatePublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

// GenerationService produces flashcard drafts from source text, either streamed to
// the caller or as a background job that saves the cards into a deck.
type GenerationService struct {
	gen       flashcardGenerator
	sources   sourceReader
	decks     deckStore
	cards     cardWriter
	jobs      JobEnqueuer
	publisher updatePublisher
	log       *logger.Logger
}

func NewGenerationService(gen flashcardGenerator, sources sourceReader, decks deckStore, cards cardWriter, jobs JobEnqueuer, publisher updatePublisher, log *logger.Logger) *GenerationService {
	return &GenerationService{
		gen:       gen,
		sources:   sources,
		decks:     decks,
		cards:     cards,
		jobs:      jobs,
		publisher: publisher,
		log:       log,
	}
}

// CheckRequest validates a streaming request without starting generation.
func (s *GenerationService) CheckRequest(req models.GenerateFlashcardsRequest) error {
	return validateGeneration(req, req.GenerationOptions)
}

// Stream generates drafts for req.Text, calling onSnapshot as cards arrive.
func (s *GenerationService) Stream(ctx context.Context, req models.GenerateFlashcardsRequest, onSnapshot func(cardstream.Snapshot)) ([]cardstream.FlashcardDraft, error) {
	if err := validateGeneration(req, req.GenerationOptions); err != nil {
		return nil, err
	}
	return s.gen.GenerateFlashcardsStream(ctx, req.Text, req.GenerationOptions.WithDefaults(), onSnapshot)
}

// Enqueue starts a background generation from a processed source. Cards go into
// req.DeckID when given, otherwise into a new deck named after the source.
func (s *GenerationService) Enqueue(ctx context.Context, userID uuid.UUID, req models.GenerateFlashcardsAsyncRequest) (*models.Job, error) {
	if err := validateGeneration(req, req.GenerationOptions); err != nil {
		return nil, err
	}

	src, err := s.sources.GetByID(ctx, req.SourceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Source not found"}
		}
		return nil, err
	}
	if src.UserID != userID {
		return nil, &NotFoundError{Message: "Source not found"}
	}
	if src.Status != models.SourceStatusCompleted {
		return nil, &ConflictError{Message: "Source is not ready yet"}
	}

	deckID, err := s.targetDeck(ctx, userID, req, src)
	if err != nil {
		return nil, err
	}

	config, err := json.Marshal(models.FlashcardJobConfig{
		SourceID: src.ID,
		DeckID:   deckID,
		Options:  req.GenerationOptions.WithDefaults(),
	})
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		UserID:      userID,
		Type:        models.JobTypeFlashcardGeneration,
		ReferenceID: deckID,
		ConfigJSON:  config,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *GenerationService) targetDeck(ctx context.Context, userID uuid.UUID, req models.GenerateFlashcardsAsyncRequest, src *models.Source) (uuid.UUID, error) {
	if req.DeckID != nil {
		if _, err := s.decks.GetByID(ctx, *req.DeckID, userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return uuid.Nil, &NotFoundError{Message: "Deck not found"}
			}
			return uuid.Nil, err
		}
		return *req.DeckID, nil
	}

	title := strings.TrimSpace(req.DeckTitle)
	if title == "" {
		title = src.Title
	}
	if title == "" {
		title = "Untitled deck"
	}
	deck := &models.Deck{UserID: userID, Title: title}
	if err := s.decks.Create(ctx, deck); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create deck: %w", err)
	}
	return deck.ID, nil
}

// Process runs a flashcard-generation job, publishing throttled progress snapshots.
func (s *GenerationService) Process(ctx context.Context, job *models.Job) (models.CompletedEvent, error) {
	var cfg models.FlashcardJobConfig
	if err := json.Unmarshal(job.ConfigJSON, &cfg); err != nil {
		return models.CompletedEvent{}, &ValidationError{Fields: map[string]string{"config": "invalid job config"}}
	}

	src, err := s.sources.GetByID(ctx, cfg.SourceID)
	if err != nil {
		return models.CompletedEvent{}, fmt.Errorf("failed to get source: %w", err)
	}
	if src.Text == nil || strings.TrimSpace(*src.Text) == "" {
		return models.CompletedEvent{}, &ValidationError{Fields: map[string]string{"source_id": "source has no text"}}
	}

	throttle := newProgressThrottle(progressInterval)
	onSnapshot := func(snap cardstream.Snapshot) {
		if !throttle.allow(time.Now(), snap) {
			return
		}
		s.publisher.PublishUpdate(ctx, job.UserID, models.WSMessage{
			Type:    models.WSTypeGenerationProgress,
			Payload: models.GenerationProgress{JobID: job.ID, DeckID: cfg.DeckID, Snapshot: snap},
		})
	}

	drafts, err := s.gen.GenerateFlashcardsStream(ctx, *src.Text, cfg.Options, onSnapshot)
	if err != nil {
		return models.CompletedEvent{}, err
	}

	cards := make([]models.Card, 0, len(drafts))
	for _, d := range drafts {
		cards = append(cards, models.CardFromDraft(cfg.DeckID, job.UserID, d))
	}
	if err := s.cards.CreateBatch(ctx, cards); err != nil {
		return models.CompletedEvent{}, fmt.Errorf("failed to save flashcards: %w", err)
	}

	s.log.Info("flashcards generated", "job_id", job.ID, "deck_id", cfg.DeckID, "count", len(cards))
	return models.CompletedEvent{ResultID: cfg.DeckID, ResultType: "deck", Count: len(cards)}, nil
}

func validateGeneration(req interface{}, opts models.GenerationOptions) error {
	if err := ValidateStruct(req); err != nil {
		return err
	}
	if opts.QuestionCount.Mode == models.QuestionCountExact &&
		(opts.QuestionCount.N < 1 || opts.QuestionCount.N > maxExactQuestionCount) {
		return &ValidationError{Fields: map[string]string{
			"question_count": fmt.Sprintf("Must be between 1 and %d", maxExactQuestionCount),
		}}
	}
	return nil
}
