package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/review"
)

type StudyRepo struct {
	pool *pgxpool.Pool
}

func NewStudyRepo(pool *pgxpool.Pool) *StudyRepo {
	return &StudyRepo{pool: pool}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

const sessionColumns = `id, user_id, deck_ids, mode, status, total_cards, started_at, ended_at`

func scanSession(row pgx.Row) (models.StudySession, error) {
	var s models.StudySession
	err := row.Scan(&s.ID, &s.UserID, &s.DeckIDs, &s.Mode, &s.Status, &s.TotalCards, &s.StartedAt, &s.EndedAt)
	return s, err
}

// CreateSession stores a new active session. TotalCards is counted from the live cards
// of the user's active decks among DeckIDs.
func (r *StudyRepo) CreateSession(ctx context.Context, s *models.StudySession) error {
	s.ID = uuid.New()
	s.Status = models.SessionStatusActive

	query := `INSERT INTO study_sessions (id, user_id, deck_ids, mode, status, total_cards)
		VALUES ($1, $2, $3, $4, $5, (
			SELECT COUNT(*) FROM flashcards f JOIN decks d ON d.id = f.deck_id
			WHERE f.deck_id = ANY($3) AND d.user_id = $2 AND d.status = 'active' AND NOT f.is_deleted
		))
		RETURNING total_cards, started_at`

	return r.pool.QueryRow(ctx, query, s.ID, s.UserID, s.DeckIDs, s.Mode, s.Status).Scan(&s.TotalCards, &s.StartedAt)
}

func (r *StudyRepo) GetSession(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CompleteSession marks the session completed and advances the user's streak. Completing
// an already completed session changes nothing and returns the stored streak.
func (r *StudyRepo) CompleteSession(ctx context.Context, id, userID uuid.UUID, now time.Time) (*models.CompleteSessionResponse, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	session, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
	if err != nil {
		return nil, err
	}

	streak, err := scanStreak(tx.QueryRow(ctx,
		"SELECT current_streak, longest_streak, last_study_date FROM users WHERE id = $1 FOR UPDATE", userID))
	if err != nil {
		return nil, err
	}

	if session.Status != models.SessionStatusCompleted {
		session.Status = models.SessionStatusCompleted
		session.EndedAt = &now
		if _, err := tx.Exec(ctx,
			"UPDATE study_sessions SET status = $1, ended_at = $2 WHERE id = $3",
			session.Status, now, id); err != nil {
			return nil, err
		}

		streak = review.AdvanceStreak(streak, now)
		if _, err := tx.Exec(ctx,
			"UPDATE users SET current_streak = $1, longest_streak = $2, last_study_date = $3 WHERE id = $4",
			streak.Current, streak.Longest, streak.LastStudyDate, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &models.CompleteSessionResponse{Session: session, Streak: streak}, nil
}

// ─── Answers ────────────────────────────────────────────────────────────────

// RecordAnswer stores the study log and applies the review update to the user's stats
// for the card. The card row is locked so concurrent answers for it apply in sequence.
func (r *StudyRepo) RecordAnswer(ctx context.Context, l *models.StudyLog, now time.Time) (*models.SubmitAnswerResponse, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var one int
	if err := tx.QueryRow(ctx,
		"SELECT 1 FROM flashcards WHERE id = $1 AND user_id = $2 AND NOT is_deleted FOR UPDATE",
		l.CardID, l.UserID).Scan(&one); err != nil {
		return nil, err
	}

	var prev *review.CardReviewStats
	var cur review.CardReviewStats
	err = tx.QueryRow(ctx,
		`SELECT correct_count, wrong_count, difficulty, due_date, last_study_time
		 FROM user_card_stats WHERE user_id = $1 AND card_id = $2`,
		l.UserID, l.CardID,
	).Scan(&cur.CorrectCount, &cur.WrongCount, &cur.Difficulty, &cur.DueDate, &cur.LastStudyTime)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		prev = &cur
	}

	next := review.Apply(prev, l.Correct, now)
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_card_stats (user_id, card_id, correct_count, wrong_count, difficulty, due_date, last_study_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, card_id) DO UPDATE SET
			correct_count = EXCLUDED.correct_count,
			wrong_count = EXCLUDED.wrong_count,
			difficulty = EXCLUDED.difficulty,
			due_date = EXCLUDED.due_date,
			last_study_time = EXCLUDED.last_study_time`,
		l.UserID, l.CardID, next.CorrectCount, next.WrongCount, next.Difficulty, next.DueDate, next.LastStudyTime,
	); err != nil {
		return nil, err
	}

	l.ID = uuid.New()
	if err := tx.QueryRow(ctx,
		`INSERT INTO study_logs (id, session_id, user_id, card_id, correct, time_taken_ms, difficulty)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		l.ID, l.SessionID, l.UserID, l.CardID, l.Correct, l.TimeTakenMs, l.Difficulty,
	).Scan(&l.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &models.SubmitAnswerResponse{
		Log:   *l,
		Stats: models.CardStats{UserID: l.UserID, CardID: l.CardID, CardReviewStats: next},
	}, nil
}

func (r *StudyRepo) ListLogs(ctx context.Context, sessionID, userID uuid.UUID) ([]models.StudyLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_id, card_id, correct, time_taken_ms, difficulty, created_at
		 FROM study_logs WHERE session_id = $1 AND user_id = $2 ORDER BY created_at, id`,
		sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.StudyLog{}
	for rows.Next() {
		var l models.StudyLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.UserID, &l.CardID, &l.Correct, &l.TimeTakenMs, &l.Difficulty, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// StatsForCards returns the user's stats keyed by card id. Cards never studied are absent.
func (r *StudyRepo) StatsForCards(ctx context.Context, userID uuid.UUID, cardIDs []uuid.UUID) (map[uuid.UUID]review.CardReviewStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT card_id, correct_count, wrong_count, difficulty, due_date, last_study_time
		 FROM user_card_stats WHERE user_id = $1 AND card_id = ANY($2)`,
		userID, cardIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[uuid.UUID]review.CardReviewStats)
	for rows.Next() {
		var id uuid.UUID
		var s review.CardReviewStats
		if err := rows.Scan(&id, &s.CorrectCount, &s.WrongCount, &s.Difficulty, &s.DueDate, &s.LastStudyTime); err != nil {
			return nil, err
		}
		stats[id] = s
	}
	return stats, rows.Err()
}

// DueCards lists cards of a deck that were never studied or whose due date has passed,
// never-studied first then oldest due date first.
func (r *StudyRepo) DueCards(ctx context.Context, userID, deckID uuid.UUID, now time.Time) ([]models.StudyCard, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT f.id, f.deck_id, f.user_id, f.front, f.back, f.front_rich, f.back_rich, f.created_at, f.updated_at,
			s.correct_count, s.wrong_count, s.difficulty, s.due_date, s.last_study_time
		 FROM flashcards f
		 JOIN decks d ON d.id = f.deck_id AND d.status = 'active'
		 LEFT JOIN user_card_stats s ON s.card_id = f.id AND s.user_id = $1
		 WHERE f.deck_id = $2 AND f.user_id = $1 AND NOT f.is_deleted
		   AND (s.card_id IS NULL OR s.due_date <= $3)
		 ORDER BY s.due_date NULLS FIRST, f.created_at`,
		userID, deckID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []models.StudyCard{}
	for rows.Next() {
		var c models.StudyCard
		var correct, wrong *int
		var difficulty *float64
		var due, last *time.Time
		err := rows.Scan(
			&c.ID, &c.DeckID, &c.UserID, &c.Front, &c.Back, &c.FrontRich, &c.BackRich, &c.CreatedAt, &c.UpdatedAt,
			&correct, &wrong, &difficulty, &due, &last,
		)
		if err != nil {
			return nil, err
		}
		if correct != nil {
			c.Stats = &review.CardReviewStats{
				CorrectCount:  *correct,
				WrongCount:    *wrong,
				Difficulty:    *difficulty,
				DueDate:       *due,
				LastStudyTime: *last,
			}
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
