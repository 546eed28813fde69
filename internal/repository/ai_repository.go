package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

type AILogRepository struct {
	pool *pgxpool.Pool
}

func NewAILogRepository(pool *pgxpool.Pool) *AILogRepository {
	return &AILogRepository{pool: pool}
}

func (r *AILogRepository) Create(ctx context.Context, x models.AIExchange) error {
	const query = `INSERT INTO ai_logs (id, user_id, prompt, response, model, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, x.ID, x.UserID, x.Prompt, x.Response, x.Model, x.CreatedAt)
	return err
}

func (r *AILogRepository) ListRecent(ctx context.Context, limit int) ([]models.AIExchange, error) {
	const query = `SELECT id, user_id, prompt, response, model, created_at FROM ai_logs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AIExchange, error) {
		var x models.AIExchange
		err := row.Scan(&x.ID, &x.UserID, &x.Prompt, &x.Response, &x.Model, &x.CreatedAt)
		return x, err
	})
}
