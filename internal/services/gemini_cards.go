package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"flashdeck-backend/internal/cardstream"
	"flashdeck-backend/internal/models"
)

// chunkSource is the part of *genai.GenerateContentResponseIterator the stream reader needs.
type chunkSource interface {
	Next() (*genai.GenerateContentResponse, error)
}

// GenerateFlashcardsStream streams a flashcard generation for text, reporting every
// intermediate snapshot to onSnapshot, and returns the finalized drafts.
func (s *GeminiService) GenerateFlashcardsStream(ctx context.Context, text string, opts models.GenerationOptions, onSnapshot func(cardstream.Snapshot)) ([]cardstream.FlashcardDraft, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	model := s.newModel(0.4, true)
	prompt := buildFlashcardPrompt(text, opts.WithDefaults())
	iter := model.GenerateContentStream(ctx, genai.Text(prompt))

	drafts, err := streamDrafts(ctx, iter, onSnapshot)
	if err != nil {
		var malformed *cardstream.MalformedResponseError
		if errors.As(err, &malformed) {
			s.log.Warn("generated flashcards could not be parsed", "error", malformed.Err, "response_bytes", len(malformed.Raw))
		}
		return nil, err
	}
	return drafts, nil
}

// streamDrafts pumps model chunks into cardstream.Stream. The first failure of either
// side cancels the other.
func streamDrafts(ctx context.Context, src chunkSource, onSnapshot func(cardstream.Snapshot)) ([]cardstream.FlashcardDraft, error) {
	chunks := make(chan string, 16)
	g, gctx := errgroup.WithContext(ctx)

	// On a pump failure chunks stays open and the consumer stops on gctx instead of
	// finalizing a partial response.
	g.Go(func() error {
		if err := pumpChunks(gctx, src, chunks); err != nil {
			return err
		}
		close(chunks)
		return nil
	})

	var drafts []cardstream.FlashcardDraft
	g.Go(func() error {
		var err error
		drafts, err = cardstream.Stream(gctx, chunks, onSnapshot)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return drafts, nil
}

func pumpChunks(ctx context.Context, src chunkSource, out chan<- string) error {
	for {
		resp, err := src.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return &GenerationError{Message: "Gemini stream failed", Err: err}
		}
		text := extractText(resp)
		if text == "" {
			continue
		}
		select {
		case out <- text:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ─── Multiple choice ────────────────────────────────────────────────────────

type generatedChoice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type multipleChoiceJSON struct {
	Cards []struct {
		ID      string            `json:"id"`
		Choices []generatedChoice `json:"choices"`
	} `json:"cards"`
}

// GenerateMultipleChoice asks for one four-choice question per card. Cards whose
// generated choices are unusable are left out of the result.
func (s *GeminiService) GenerateMultipleChoice(ctx context.Context, cards []models.Card, language string) ([]models.CardChoices, error) {
	raw, err := s.generateText(ctx, s.newModel(0.5, true), genai.Text(buildMultipleChoicePrompt(cards, language)))
	if err != nil {
		return nil, err
	}
	return parseMultipleChoice(raw, cards)
}

func parseMultipleChoice(raw string, cards []models.Card) ([]models.CardChoices, error) {
	var parsed multipleChoiceJSON
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); err != nil {
		return nil, &GenerationError{Message: "could not parse generated choices", Err: err}
	}

	wanted := lo.Associate(cards, func(c models.Card) (string, bool) { return c.ID.String(), true })
	out := make([]models.CardChoices, 0, len(parsed.Cards))
	seen := make(map[string]bool)
	for _, pc := range parsed.Cards {
		id := strings.ToLower(strings.TrimSpace(pc.ID))
		if !wanted[id] || seen[id] {
			continue
		}
		choices := lo.FilterMap(pc.Choices, func(c generatedChoice, _ int) (models.Choice, bool) {
			text := strings.TrimSpace(c.Text)
			return models.Choice{Text: text, IsCorrect: c.IsCorrect}, text != ""
		})
		if !validChoiceSet(choices) {
			continue
		}
		seen[id] = true
		out = append(out, models.CardChoices{CardID: uuid.MustParse(id), Choices: choices})
	}

	if len(out) == 0 {
		return nil, &GenerationError{Message: "generated choices did not match any card"}
	}
	return out, nil
}

// validChoiceSet reports whether choices has four distinct texts with exactly one correct.
func validChoiceSet(choices []models.Choice) bool {
	if len(choices) != 4 {
		return false
	}
	if lo.CountBy(choices, func(c models.Choice) bool { return c.IsCorrect }) != 1 {
		return false
	}
	return len(lo.UniqBy(choices, func(c models.Choice) string { return c.Text })) == 4
}

// ─── True / false ───────────────────────────────────────────────────────────

type generatedStatement struct {
	Text   string `json:"text"`
	IsTrue bool   `json:"isTrue"`
}

type trueFalseJSON []struct {
	CardID    string               `json:"cardId"`
	Questions []generatedStatement `json:"questions"`
}

// GenerateTrueFalse asks for one true and one false statement per card. Cards the
// model skipped or answered badly get template statements built from front and back.
func (s *GeminiService) GenerateTrueFalse(ctx context.Context, cards []models.Card, language string) ([]models.CardStatements, error) {
	raw, err := s.generateText(ctx, s.newModel(0.5, true), genai.Text(buildTrueFalsePrompt(cards, language)))
	if err != nil {
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			return nil, err
		}
		s.log.Warn("true/false generation failed, using template statements", "error", err)
		raw = ""
	}
	return parseTrueFalse(raw, cards, language), nil
}

func parseTrueFalse(raw string, cards []models.Card, language string) []models.CardStatements {
	byCard := make(map[string][]models.TrueFalseStatement)
	var parsed trueFalseJSON
	if raw != "" {
		if err := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); err == nil {
			for _, p := range parsed {
				stmts := lo.FilterMap(p.Questions, func(q generatedStatement, _ int) (models.TrueFalseStatement, bool) {
					text := strings.TrimSpace(q.Text)
					return models.TrueFalseStatement{Text: text, IsTrue: q.IsTrue}, text != ""
				})
				byCard[strings.ToLower(strings.TrimSpace(p.CardID))] = stmts
			}
		}
	}

	return lo.Map(cards, func(c models.Card, _ int) models.CardStatements {
		stmts := byCard[c.ID.String()]
		trueStmt, hasTrue := lo.Find(stmts, func(s models.TrueFalseStatement) bool { return s.IsTrue })
		falseStmt, hasFalse := lo.Find(stmts, func(s models.TrueFalseStatement) bool { return !s.IsTrue })
		if !hasTrue || !hasFalse {
			return models.CardStatements{CardID: c.ID, Statements: defaultStatements(c, language)}
		}
		return models.CardStatements{CardID: c.ID, Statements: []models.TrueFalseStatement{trueStmt, falseStmt}}
	})
}

func defaultStatements(c models.Card, language string) []models.TrueFalseStatement {
	if language == "ja" {
		return []models.TrueFalseStatement{
			{Text: fmt.Sprintf("%sは%sである。", c.Front, c.Back), IsTrue: true},
			{Text: fmt.Sprintf("%sは%sではない。", c.Front, c.Back), IsTrue: false},
		}
	}
	return []models.TrueFalseStatement{
		{Text: fmt.Sprintf("%s: %s.", c.Front, c.Back), IsTrue: true},
		{Text: fmt.Sprintf("%s: not %s.", c.Front, c.Back), IsTrue: false},
	}
}
