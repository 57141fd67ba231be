package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

type stubCardLister struct {
	cards []models.Card
}

func (s *stubCardLister) ListByIDs(_ context.Context, ids []uuid.UUID, _ uuid.UUID) ([]models.Card, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Card
	for _, c := range s.cards {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubChoiceGenerator struct {
	mu       sync.Mutex
	mcCalls  int
	tfCalls  int
	mcCards  [][]uuid.UUID
	failWith error
}

func (g *stubChoiceGenerator) GenerateMultipleChoice(_ context.Context, cards []models.Card, _ string) ([]models.CardChoices, error) {
	g.mu.Lock()
	g.mcCalls++
	ids := make([]uuid.UUID, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	g.mcCards = append(g.mcCards, ids)
	g.mu.Unlock()

	if g.failWith != nil {
		return nil, g.failWith
	}
	out := make([]models.CardChoices, len(cards))
	for i, c := range cards {
		out[i] = models.CardChoices{CardID: c.ID, Choices: []models.Choice{
			{ID: "a", Text: c.Back, IsCorrect: true},
			{ID: "b", Text: "wrong 1"},
			{ID: "c", Text: "wrong 2"},
			{ID: "d", Text: "wrong 3"},
		}}
	}
	return out, nil
}

func (g *stubChoiceGenerator) GenerateTrueFalse(_ context.Context, cards []models.Card, language string) ([]models.CardStatements, error) {
	g.mu.Lock()
	g.tfCalls++
	g.mu.Unlock()
	return parseTrueFalse("", cards, language), nil
}

type memoryChoiceCache struct {
	mu      sync.Mutex
	values  map[string]string
	readErr error
}

func newMemoryChoiceCache() *memoryChoiceCache {
	return &memoryChoiceCache{values: make(map[string]string)}
}

func (c *memoryChoiceCache) GetMany(_ context.Context, keys []string) ([]string, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.values[k]
	}
	return out, nil
}

func (c *memoryChoiceCache) SetMany(_ context.Context, values map[string]string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.values[k] = v
	}
	return nil
}

func newTestChoiceService(cards []models.Card) (*ChoiceService, *stubChoiceGenerator, *memoryChoiceCache) {
	gen := &stubChoiceGenerator{}
	cache := newMemoryChoiceCache()
	svc := NewChoiceService(&stubCardLister{cards: cards}, gen, cache, time.Hour, logger.Nop())
	return svc, gen, cache
}

// ─── Multiple choice ───

func TestChoiceService_MultipleChoiceCaches(t *testing.T) {
	cards := testCards(2)
	svc, gen, _ := newTestChoiceService(cards)
	req := models.CardBatchRequest{CardIDs: []uuid.UUID{cards[1].ID, cards[0].ID}, Language: "en"}

	got, err := svc.MultipleChoice(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("MultipleChoice: %v", err)
	}
	if len(got) != 2 || got[0].CardID != cards[1].ID {
		t.Fatalf("expected results in request order, got %+v", got)
	}
	for _, cc := range got {
		labels := map[string]bool{}
		correct := 0
		for _, c := range cc.Choices {
			labels[c.ID] = true
			if c.IsCorrect {
				correct++
			}
		}
		if len(labels) != 4 || !labels["a"] || !labels["d"] || correct != 1 {
			t.Fatalf("expected relabelled choices with one correct, got %+v", cc.Choices)
		}
	}

	if _, err := svc.MultipleChoice(context.Background(), uuid.New(), req); err != nil {
		t.Fatalf("second MultipleChoice: %v", err)
	}
	if gen.mcCalls != 1 {
		t.Fatalf("expected cached second call, generator called %d times", gen.mcCalls)
	}
}

func TestChoiceService_OnlyMissingGenerated(t *testing.T) {
	cards := testCards(2)
	svc, gen, _ := newTestChoiceService(cards)

	if _, err := svc.MultipleChoice(context.Background(), uuid.New(), models.CardBatchRequest{CardIDs: []uuid.UUID{cards[0].ID}}); err != nil {
		t.Fatalf("MultipleChoice: %v", err)
	}
	if _, err := svc.MultipleChoice(context.Background(), uuid.New(), models.CardBatchRequest{CardIDs: []uuid.UUID{cards[0].ID, cards[1].ID}}); err != nil {
		t.Fatalf("MultipleChoice: %v", err)
	}
	if len(gen.mcCards) != 2 || len(gen.mcCards[1]) != 1 || gen.mcCards[1][0] != cards[1].ID {
		t.Fatalf("expected only the uncached card to be generated, got %v", gen.mcCards)
	}
}

func TestChoiceService_EditedCardRegenerates(t *testing.T) {
	cards := testCards(1)
	svc, gen, _ := newTestChoiceService(cards)
	req := models.CardBatchRequest{CardIDs: []uuid.UUID{cards[0].ID}}

	if _, err := svc.MultipleChoice(context.Background(), uuid.New(), req); err != nil {
		t.Fatalf("MultipleChoice: %v", err)
	}
	cards[0].UpdatedAt = cards[0].UpdatedAt.Add(time.Minute)
	if _, err := svc.MultipleChoice(context.Background(), uuid.New(), req); err != nil {
		t.Fatalf("MultipleChoice: %v", err)
	}
	if gen.mcCalls != 2 {
		t.Fatalf("expected regeneration after edit, got %d calls", gen.mcCalls)
	}
}

func TestChoiceService_CacheReadFailure(t *testing.T) {
	cards := testCards(1)
	svc, gen, cache := newTestChoiceService(cards)
	cache.readErr = errors.New("redis down")

	got, err := svc.MultipleChoice(context.Background(), uuid.New(), models.CardBatchRequest{CardIDs: []uuid.UUID{cards[0].ID}})
	if err != nil {
		t.Fatalf("expected cache failure to fall through, got %v", err)
	}
	if len(got) != 1 || gen.mcCalls != 1 {
		t.Fatalf("unexpected result %+v with %d calls", got, gen.mcCalls)
	}
}

func TestChoiceService_Errors(t *testing.T) {
	cards := testCards(1)
	svc, gen, _ := newTestChoiceService(cards)

	_, err := svc.MultipleChoice(context.Background(), uuid.New(), models.CardBatchRequest{})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty ids, got %v", err)
	}

	_, err = svc.MultipleChoice(context.Background(), uuid.New(), models.CardBatchRequest{CardIDs: []uuid.UUID{uuid.New()}})
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError for unknown card, got %v", err)
	}

	gen.failWith = &GenerationError{Message: "boom"}
	_, err = svc.MultipleChoice(context.Background(), uuid.New(), models.CardBatchRequest{CardIDs: []uuid.UUID{cards[0].ID}})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

// ─── True / false ───

func TestChoiceService_TrueFalse(t *testing.T) {
	cards := testCards(2)
	svc, gen, _ := newTestChoiceService(cards)
	req := models.CardBatchRequest{CardIDs: []uuid.UUID{cards[0].ID, cards[1].ID, cards[0].ID}}

	got, err := svc.TrueFalse(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("TrueFalse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected duplicate ids collapsed, got %d results", len(got))
	}
	if !got[0].Statements[0].IsTrue || got[0].Statements[1].IsTrue {
		t.Fatalf("expected one true then one false statement, got %+v", got[0].Statements)
	}
	if got[0].Statements[0].Text != "FrontはBackである。" {
		t.Fatalf("expected Japanese default language, got %q", got[0].Statements[0].Text)
	}
	if _, err := svc.TrueFalse(context.Background(), uuid.New(), req); err != nil {
		t.Fatalf("TrueFalse: %v", err)
	}
	if gen.tfCalls != 1 {
		t.Fatalf("expected cached second call, got %d calls", gen.tfCalls)
	}
}

func TestShuffleChoices(t *testing.T) {
	in := []models.Choice{{ID: "x", Text: "1", IsCorrect: true}, {ID: "y", Text: "2"}, {ID: "z", Text: "3"}, {ID: "w", Text: "4"}}
	out := shuffleChoices(in)
	if in[0].ID != "x" {
		t.Fatalf("input slice was modified")
	}
	for i, c := range out {
		if c.ID != choiceLabels[i] {
			t.Fatalf("choice %d labelled %q", i, c.ID)
		}
	}
}
