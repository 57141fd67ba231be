package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"flashdeck-backend/internal/models"
)

type DeckRepo struct {
	pool *pgxpool.Pool
}

func NewDeckRepo(pool *pgxpool.Pool) *DeckRepo {
	return &DeckRepo{pool: pool}
}

const deckColumns = `d.id, d.user_id, d.title, d.description, d.status, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM flashcards f WHERE f.deck_id = d.id AND NOT f.is_deleted)`

func (r *DeckRepo) Create(ctx context.Context, d *models.Deck) error {
	d.ID = uuid.New()
	d.Status = models.DeckStatusActive

	query := `INSERT INTO decks (id, user_id, title, description, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		d.ID, d.UserID, d.Title, d.Description, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// GetByID returns an active deck owned by userID.
func (r *DeckRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Deck, error) {
	d := &models.Deck{}
	query := `SELECT ` + deckColumns + `
		FROM decks d WHERE d.id = $1 AND d.user_id = $2 AND d.status = 'active'`

	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&d.ID, &d.UserID, &d.Title, &d.Description, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.CardCount,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DeckRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Deck, error) {
	query := `SELECT ` + deckColumns + `
		FROM decks d WHERE d.user_id = $1 AND d.status = 'active' ORDER BY d.created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decks := []models.Deck{}
	for rows.Next() {
		var d models.Deck
		err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.Description, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.CardCount)
		if err != nil {
			return nil, err
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// Update applies the non-nil fields and returns the number of rows touched.
func (r *DeckRepo) Update(ctx context.Context, id, userID uuid.UUID, req models.UpdateDeckRequest) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE decks SET title = COALESCE($1, title), description = COALESCE($2, description), updated_at = NOW()
		 WHERE id = $3 AND user_id = $4 AND status = 'active'`,
		req.Title, req.Description, id, userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *DeckRepo) SoftDelete(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE decks SET status = 'deleted', updated_at = NOW() WHERE id = $1 AND user_id = $2 AND status = 'active'",
		id, userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
