package generation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renderyard/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, g *models.Generation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO generations (id, user_id, image_url, prompt, tool_type, style, aspect_ratio, source_image_url, credits_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, g.ID, g.UserID, g.ImageURL, g.Prompt, g.ToolType, g.Style, g.AspectRatio, g.SourceImageURL, g.CreditsUsed, g.CreatedAt)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	var g models.Generation
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, image_url, prompt, tool_type, style, aspect_ratio, source_image_url, credits_used, created_at
		FROM generations WHERE id = $1
	`, id).Scan(&g.ID, &g.UserID, &g.ImageURL, &g.Prompt, &g.ToolType, &g.Style, &g.AspectRatio, &g.SourceImageURL, &g.CreditsUsed, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Generation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, image_url, prompt, tool_type, style, aspect_ratio, source_image_url, credits_used, created_at
		FROM generations WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Generation
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.UserID, &g.ImageURL, &g.Prompt, &g.ToolType, &g.Style, &g.AspectRatio, &g.SourceImageURL, &g.CreditsUsed, &g.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &g)
	}
	return list, rows.Err()
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM generations WHERE id = $1", id)
	return err
}
