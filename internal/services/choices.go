package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

const choiceGenerationTimeout = 2 * time.Minute

var choiceLabels = []string{"a", "b", "c", "d"}

type cardLister interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]models.Card, error)
}

type choiceGenerator interface {
	GenerateMultipleChoice(ctx context.Context, cards []models.Card, language string) ([]models.CardChoices, error)
	GenerateTrueFalse(ctx context.Context, cards []models.Card, language string) ([]models.CardStatements, error)
}

// ChoiceCache stores generated question material per card. GetMany returns "" for misses.
type ChoiceCache interface {
	GetMany(ctx context.Context, keys []string) ([]string, error)
	SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error
}

type redisChoiceCache struct {
	redis *redis.Client
}

func NewRedisChoiceCache(redisClient *redis.Client) ChoiceCache {
	return &redisChoiceCache{redis: redisClient}
}

func (c *redisChoiceCache) GetMany(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

func (c *redisChoiceCache) SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	pipe := c.redis.Pipeline()
	for k, v := range values {
		pipe.Set(ctx, k, v, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ChoiceService serves multiple-choice and true/false material for study cards.
// Results are cached per card version, and concurrent requests for the same
// uncached card set share one generation call.
type ChoiceService struct {
	cards cardLister
	gen   choiceGenerator
	cache ChoiceCache
	ttl   time.Duration
	log   *logger.Logger
	group singleflight.Group
}

func NewChoiceService(cards cardLister, gen choiceGenerator, cache ChoiceCache, ttl time.Duration, log *logger.Logger) *ChoiceService {
	return &ChoiceService{cards: cards, gen: gen, cache: cache, ttl: ttl, log: log}
}

func (s *ChoiceService) MultipleChoice(ctx context.Context, userID uuid.UUID, req models.CardBatchRequest) ([]models.CardChoices, error) {
	cards, language, err := s.loadCards(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	found, err := cachedBatch(ctx, s, "mc", language, cards, func(ctx context.Context, missing []models.Card) (map[uuid.UUID]models.CardChoices, error) {
		generated, err := s.gen.GenerateMultipleChoice(ctx, missing, language)
		if err != nil {
			return nil, err
		}
		return lo.KeyBy(generated, func(c models.CardChoices) uuid.UUID { return c.CardID }), nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.CardChoices, 0, len(cards))
	for _, c := range cards {
		cc, ok := found[c.ID]
		if !ok {
			continue
		}
		out = append(out, models.CardChoices{CardID: c.ID, Choices: shuffleChoices(cc.Choices)})
	}
	if len(out) == 0 {
		return nil, &GenerationError{Message: "no choices could be generated for these cards"}
	}
	return out, nil
}

func (s *ChoiceService) TrueFalse(ctx context.Context, userID uuid.UUID, req models.CardBatchRequest) ([]models.CardStatements, error) {
	cards, language, err := s.loadCards(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	found, err := cachedBatch(ctx, s, "tf", language, cards, func(ctx context.Context, missing []models.Card) (map[uuid.UUID]models.CardStatements, error) {
		generated, err := s.gen.GenerateTrueFalse(ctx, missing, language)
		if err != nil {
			return nil, err
		}
		return lo.KeyBy(generated, func(c models.CardStatements) uuid.UUID { return c.CardID }), nil
	})
	if err != nil {
		return nil, err
	}

	return lo.FilterMap(cards, func(c models.Card, _ int) (models.CardStatements, bool) {
		st, ok := found[c.ID]
		return st, ok
	}), nil
}

// loadCards returns the requested cards in request order, without duplicates.
func (s *ChoiceService) loadCards(ctx context.Context, userID uuid.UUID, req models.CardBatchRequest) ([]models.Card, string, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, "", err
	}
	language := req.Language
	if language == "" {
		language = "ja"
	}

	ids := lo.Uniq(req.CardIDs)
	cards, err := s.cards.ListByIDs(ctx, ids, userID)
	if err != nil {
		return nil, "", err
	}
	if len(cards) == 0 {
		return nil, "", &NotFoundError{Message: "Cards not found"}
	}

	byID := lo.KeyBy(cards, func(c models.Card) uuid.UUID { return c.ID })
	ordered := lo.FilterMap(ids, func(id uuid.UUID, _ int) (models.Card, bool) {
		c, ok := byID[id]
		return c, ok
	})
	return ordered, language, nil
}

func choiceCacheKey(kind, language string, c models.Card) string {
	return fmt.Sprintf("choices:%s:%s:%s:%d", kind, language, c.ID, c.UpdatedAt.Unix())
}

// cachedBatch resolves one value per card from the cache and generates the misses.
// Cache failures are logged and treated as misses.
func cachedBatch[T any](ctx context.Context, s *ChoiceService, kind, language string, cards []models.Card,
	generate func(context.Context, []models.Card) (map[uuid.UUID]T, error)) (map[uuid.UUID]T, error) {

	keys := lo.Map(cards, func(c models.Card, _ int) string { return choiceCacheKey(kind, language, c) })
	found := make(map[uuid.UUID]T, len(cards))

	cached, err := s.cache.GetMany(ctx, keys)
	if err != nil {
		s.log.Warn("choice cache read failed", "kind", kind, "error", err)
		cached = nil
	}
	var missing []models.Card
	for i, c := range cards {
		var v T
		if i < len(cached) && cached[i] != "" && json.Unmarshal([]byte(cached[i]), &v) == nil {
			found[c.ID] = v
			continue
		}
		missing = append(missing, c)
	}
	if len(missing) == 0 {
		return found, nil
	}

	ids := lo.Map(missing, func(c models.Card, _ int) string { return c.ID.String() })
	sort.Strings(ids)
	flightKey := kind + ":" + language + ":" + strings.Join(ids, ",")

	ch := s.group.DoChan(flightKey, func() (interface{}, error) {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), choiceGenerationTimeout)
		defer cancel()

		generated, err := generate(genCtx, missing)
		if err != nil {
			return nil, err
		}

		toCache := make(map[string]string, len(generated))
		for _, c := range missing {
			v, ok := generated[c.ID]
			if !ok {
				continue
			}
			if data, err := json.Marshal(v); err == nil {
				toCache[choiceCacheKey(kind, language, c)] = string(data)
			}
		}
		if err := s.cache.SetMany(genCtx, toCache, s.ttl); err != nil {
			s.log.Warn("choice cache write failed", "kind", kind, "error", err)
		}
		return generated, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		for id, v := range res.Val.(map[uuid.UUID]T) {
			found[id] = v
		}
		return found, nil
	}
}

// shuffleChoices returns the choices in random order relabelled a to d.
func shuffleChoices(choices []models.Choice) []models.Choice {
	out := lo.Shuffle(append([]models.Choice(nil), choices...))
	for i := range out {
		if i < len(choiceLabels) {
			out[i].ID = choiceLabels[i]
		}
	}
	return out
}
