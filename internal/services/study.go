package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/review"
)

type studyStore interface {
	CreateSession(ctx context.Context, s *models.StudySession) error
	GetSession(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error)
	CompleteSession(ctx context.Context, id, userID uuid.UUID, now time.Time) (*models.CompleteSessionResponse, error)
	RecordAnswer(ctx context.Context, l *models.StudyLog, now time.Time) (*models.SubmitAnswerResponse, error)
	ListLogs(ctx context.Context, sessionID, userID uuid.UUID) ([]models.StudyLog, error)
	StatsForCards(ctx context.Context, userID uuid.UUID, cardIDs []uuid.UUID) (map[uuid.UUID]review.CardReviewStats, error)
	DueCards(ctx context.Context, userID, deckID uuid.UUID, now time.Time) ([]models.StudyCard, error)
}

type deckCardLister interface {
	ListByDeck(ctx context.Context, deckID, userID uuid.UUID) ([]models.Card, error)
}

type StudyService struct {
	study studyStore
	cards deckCardLister
	log   *logger.Logger
	now   func() time.Time
}

func NewStudyService(study studyStore, cards deckCardLister, log *logger.Logger) *StudyService {
	return &StudyService{study: study, cards: cards, log: log, now: time.Now}
}

func (s *StudyService) StartSession(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.StudySession, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	session := &models.StudySession{
		UserID:  userID,
		DeckIDs: lo.Uniq(req.DeckIDs),
		Mode:    req.Mode,
	}
	if err := s.study.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if session.TotalCards == 0 {
		s.log.Info("study session started with no cards", "session_id", session.ID, "user_id", userID)
	}
	return session, nil
}

func (s *StudyService) GetSession(ctx context.Context, userID, id uuid.UUID) (*models.StudySession, error) {
	session, err := s.study.GetSession(ctx, id, userID)
	if err != nil {
		return nil, notFoundOr(err, "Study session not found")
	}
	return session, nil
}

// SessionCards returns the session's cards in random order along with the user's stats
// for each. Decks are loaded concurrently.
func (s *StudyService) SessionCards(ctx context.Context, userID, sessionID uuid.UUID) ([]models.StudyCard, error) {
	session, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var cards []models.Card
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, deckID := range session.DeckIDs {
		g.Go(func() error {
			deckCards, err := s.cards.ListByDeck(gctx, deckID, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			cards = append(cards, deckCards...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cards = lo.UniqBy(cards, func(c models.Card) uuid.UUID { return c.ID })
	cards = lo.Shuffle(cards)

	stats, err := s.study.StatsForCards(ctx, userID, lo.Map(cards, func(c models.Card, _ int) uuid.UUID { return c.ID }))
	if err != nil {
		return nil, err
	}

	return lo.Map(cards, func(c models.Card, _ int) models.StudyCard {
		sc := models.StudyCard{Card: c}
		if st, ok := stats[c.ID]; ok {
			sc.Stats = &st
		}
		return sc
	}), nil
}

// SubmitAnswer records one answer and updates the card's review stats.
func (s *StudyService) SubmitAnswer(ctx context.Context, userID uuid.UUID, req models.SubmitAnswerRequest) (*models.SubmitAnswerResponse, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	correct, err := answerOutcome(req)
	if err != nil {
		return nil, err
	}

	session, err := s.GetSession(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusCompleted {
		return nil, &ConflictError{Message: "Study session is already completed"}
	}

	entry := &models.StudyLog{
		SessionID:   session.ID,
		UserID:      userID,
		CardID:      req.CardID,
		Correct:     correct,
		TimeTakenMs: req.TimeTakenMs,
		Difficulty:  req.Difficulty,
	}
	resp, err := s.study.RecordAnswer(ctx, entry, s.now())
	if err != nil {
		return nil, notFoundOr(err, "Card not found")
	}
	return resp, nil
}

// answerOutcome resolves the correct flag. An explicit flag wins over the bucket.
func answerOutcome(req models.SubmitAnswerRequest) (bool, error) {
	if req.Correct != nil {
		return *req.Correct, nil
	}
	if req.Difficulty != nil {
		if correct, ok := review.Outcome(review.Bucket(*req.Difficulty)); ok {
			return correct, nil
		}
	}
	return false, &ValidationError{Fields: map[string]string{"correct": "is required when difficulty is not given"}}
}

func (s *StudyService) CompleteSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.CompleteSessionResponse, error) {
	resp, err := s.study.CompleteSession(ctx, sessionID, userID, s.now())
	if err != nil {
		return nil, notFoundOr(err, "Study session not found")
	}
	return resp, nil
}

// Result summarizes a session. Accuracy is the fraction of correct answers, 0 when
// nothing was answered.
func (s *StudyService) Result(ctx context.Context, userID, sessionID uuid.UUID) (*models.SessionResult, error) {
	session, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	logs, err := s.study.ListLogs(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	correct := lo.CountBy(logs, func(l models.StudyLog) bool { return l.Correct })
	result := &models.SessionResult{
		Session:        *session,
		CorrectCount:   correct,
		IncorrectCount: len(logs) - correct,
		Logs:           logs,
	}
	if len(logs) > 0 {
		result.Accuracy = float64(correct) / float64(len(logs))
	}
	return result, nil
}

func (s *StudyService) DueCards(ctx context.Context, userID, deckID uuid.UUID) ([]models.StudyCard, error) {
	return s.study.DueCards(ctx, userID, deckID, s.now())
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: msg}
	}
	return err
}
