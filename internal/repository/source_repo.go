package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"flashdeck-backend/internal/models"
)

type SourceRepo struct {
	pool *pgxpool.Pool
}

func NewSourceRepo(pool *pgxpool.Pool) *SourceRepo {
	return &SourceRepo{pool: pool}
}

func (r *SourceRepo) Create(ctx context.Context, s *models.Source) error {
	s.ID = uuid.New()
	if len(s.MetadataJSON) == 0 {
		s.MetadataJSON = json.RawMessage("{}")
	}

	query := `INSERT INTO sources (id, user_id, type, status, title, source_url, file_path, text, metadata_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.Type, s.Status, s.Title, s.SourceURL, s.FilePath, s.Text, []byte(s.MetadataJSON),
	).Scan(&s.CreatedAt)
}

func (r *SourceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	s := &models.Source{}
	var meta []byte
	query := `SELECT id, user_id, type, status, title, source_url, file_path, text, metadata_json, created_at
		FROM sources WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.Type, &s.Status, &s.Title, &s.SourceURL, &s.FilePath,
		&s.Text, &meta, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.MetadataJSON = meta
	return s, nil
}

func (r *SourceRepo) UpdateText(ctx context.Context, id uuid.UUID, title, text string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE sources SET text = $1, title = CASE WHEN $2 = '' THEN title ELSE $2 END, status = 'completed' WHERE id = $3",
		text, title, id)
	return err
}

func (r *SourceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, "UPDATE sources SET status = $1 WHERE id = $2", status, id)
	return err
}
