package services

import (
	"context"

	"github.com/google/uuid"

	"flashdeck-backend/internal/models"
)

type deckRepository interface {
	Create(ctx context.Context, d *models.Deck) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Deck, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Deck, error)
	Update(ctx context.Context, id, userID uuid.UUID, req models.UpdateDeckRequest) (int64, error)
	SoftDelete(ctx context.Context, id, userID uuid.UUID) (int64, error)
}

type cardRepository interface {
	CreateBatch(ctx context.Context, cards []models.Card) error
	ListByDeck(ctx context.Context, deckID, userID uuid.UUID) ([]models.Card, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Card, error)
	Update(ctx context.Context, id, userID uuid.UUID, req models.UpdateCardRequest) (*models.Card, error)
	SoftDelete(ctx context.Context, id, userID uuid.UUID) (int64, error)
}

// DeckService owns decks and the flashcards saved into them.
type DeckService struct {
	decks deckRepository
	cards cardRepository
}

func NewDeckService(decks deckRepository, cards cardRepository) *DeckService {
	return &DeckService{decks: decks, cards: cards}
}

// ─── Decks ──────────────────────────────────────────────────────────────────

func (s *DeckService) Create(ctx context.Context, userID uuid.UUID, req models.CreateDeckRequest) (*models.Deck, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	deck := &models.Deck{UserID: userID, Title: req.Title, Description: req.Description}
	if err := s.decks.Create(ctx, deck); err != nil {
		return nil, err
	}
	return deck, nil
}

func (s *DeckService) List(ctx context.Context, userID uuid.UUID) ([]models.Deck, error) {
	return s.decks.ListByUser(ctx, userID)
}

func (s *DeckService) Get(ctx context.Context, userID, id uuid.UUID) (*models.DeckWithCards, error) {
	deck, err := s.decks.GetByID(ctx, id, userID)
	if err != nil {
		return nil, notFoundOr(err, "Deck not found")
	}
	cards, err := s.cards.ListByDeck(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &models.DeckWithCards{Deck: *deck, Cards: cards}, nil
}

func (s *DeckService) Update(ctx context.Context, userID, id uuid.UUID, req models.UpdateDeckRequest) (*models.Deck, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	n, err := s.decks.Update(ctx, id, userID, req)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &NotFoundError{Message: "Deck not found"}
	}
	deck, err := s.decks.GetByID(ctx, id, userID)
	if err != nil {
		return nil, notFoundOr(err, "Deck not found")
	}
	return deck, nil
}

func (s *DeckService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	n, err := s.decks.SoftDelete(ctx, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{Message: "Deck not found"}
	}
	return nil
}

// ─── Cards ──────────────────────────────────────────────────────────────────

// SaveDrafts stores generated drafts in a deck owned by userID. Rich text is sanitized
// and drafts with an empty side are skipped.
func (s *DeckService) SaveDrafts(ctx context.Context, userID uuid.UUID, req models.SaveFlashcardsRequest) ([]models.Card, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.decks.GetByID(ctx, req.DeckID, userID); err != nil {
		return nil, notFoundOr(err, "Deck not found")
	}

	cards := make([]models.Card, 0, len(req.Flashcards))
	for _, d := range req.Flashcards {
		c := models.CardFromDraft(req.DeckID, userID, d)
		if c.Front == "" || c.Back == "" {
			continue
		}
		cards = append(cards, c)
	}
	if len(cards) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"flashcards": "No flashcard has both a front and a back"}}
	}
	if err := s.cards.CreateBatch(ctx, cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *DeckService) ListCards(ctx context.Context, userID, deckID uuid.UUID) ([]models.Card, error) {
	if _, err := s.decks.GetByID(ctx, deckID, userID); err != nil {
		return nil, notFoundOr(err, "Deck not found")
	}
	return s.cards.ListByDeck(ctx, deckID, userID)
}

func (s *DeckService) GetCard(ctx context.Context, userID, id uuid.UUID) (*models.Card, error) {
	card, err := s.cards.GetByID(ctx, id, userID)
	if err != nil {
		return nil, notFoundOr(err, "Flashcard not found")
	}
	return card, nil
}

// UpdateCard edits a card. Rich text updates are sanitized before storage.
func (s *DeckService) UpdateCard(ctx context.Context, userID, id uuid.UUID, req models.UpdateCardRequest) (*models.Card, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	req = req.Sanitized()
	card, err := s.cards.Update(ctx, id, userID, req)
	if err != nil {
		return nil, notFoundOr(err, "Flashcard not found")
	}
	return card, nil
}

func (s *DeckService) DeleteCard(ctx context.Context, userID, id uuid.UUID) error {
	n, err := s.cards.SoftDelete(ctx, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{Message: "Flashcard not found"}
	}
	return nil
}
