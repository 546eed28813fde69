package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) Create(ctx context.Context, a models.Activity) error {
	const query = `INSERT INTO activities (id, user_id, action, details, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, a.ID, a.UserID, a.Action, a.Details, a.CreatedAt)
	return err
}

func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	const query = `
		SELECT id, user_id, action, details, created_at
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Activity, error) {
		var a models.Activity
		err := row.Scan(&a.ID, &a.UserID, &a.Action, &a.Details, &a.CreatedAt)
		return a, err
	})
}
