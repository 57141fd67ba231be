package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flashdeck-backend/internal/models"
)

type CardRepo struct {
	pool *pgxpool.Pool
}

func NewCardRepo(pool *pgxpool.Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

const cardColumns = `id, deck_id, user_id, front, back, front_rich, back_rich, created_at, updated_at`

func scanCard(row pgx.Row) (models.Card, error) {
	var c models.Card
	err := row.Scan(&c.ID, &c.DeckID, &c.UserID, &c.Front, &c.Back, &c.FrontRich, &c.BackRich, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateBatch inserts all cards in one transaction and fills in their ids and timestamps.
func (r *CardRepo) CreateBatch(ctx context.Context, cards []models.Card) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range cards {
		cards[i].ID = uuid.New()
		batch.Queue(
			`INSERT INTO flashcards (id, deck_id, user_id, front, back, front_rich, back_rich)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
			cards[i].ID, cards[i].DeckID, cards[i].UserID, cards[i].Front, cards[i].Back, cards[i].FrontRich, cards[i].BackRich,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range cards {
		if err := results.QueryRow().Scan(&cards[i].CreatedAt, &cards[i].UpdatedAt); err != nil {
			results.Close()
			return err
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	if len(cards) > 0 {
		if _, err := tx.Exec(ctx, "UPDATE decks SET updated_at = NOW() WHERE id = $1", cards[0].DeckID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *CardRepo) ListByDeck(ctx context.Context, deckID, userID uuid.UUID) ([]models.Card, error) {
	return r.list(ctx,
		`SELECT `+cardColumns+` FROM flashcards
		 WHERE deck_id = $1 AND user_id = $2 AND NOT is_deleted ORDER BY created_at, id`,
		deckID, userID)
}

// ListByIDs returns the live cards among ids that belong to userID, in no particular order.
func (r *CardRepo) ListByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]models.Card, error) {
	return r.list(ctx,
		`SELECT `+cardColumns+` FROM flashcards
		 WHERE id = ANY($1) AND user_id = $2 AND NOT is_deleted`,
		ids, userID)
}

func (r *CardRepo) list(ctx context.Context, query string, args ...interface{}) ([]models.Card, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *CardRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Card, error) {
	c, err := scanCard(r.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM flashcards WHERE id = $1 AND user_id = $2 AND NOT is_deleted`,
		id, userID))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update applies the non-nil fields and returns the updated card.
func (r *CardRepo) Update(ctx context.Context, id, userID uuid.UUID, req models.UpdateCardRequest) (*models.Card, error) {
	c, err := scanCard(r.pool.QueryRow(ctx,
		`UPDATE flashcards SET
			front = COALESCE($1, front),
			back = COALESCE($2, back),
			front_rich = COALESCE($3, front_rich),
			back_rich = COALESCE($4, back_rich),
			updated_at = NOW()
		 WHERE id = $5 AND user_id = $6 AND NOT is_deleted
		 RETURNING `+cardColumns,
		req.Front, req.Back, req.FrontRich, req.BackRich, id, userID))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CardRepo) SoftDelete(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE flashcards SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2 AND NOT is_deleted",
		id, userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
