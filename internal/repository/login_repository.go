package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

// loginHistoryLimit bounds the retained login records.
const loginHistoryLimit = 1000

type LoginRecordRepository struct {
	pool *pgxpool.Pool
}

func NewLoginRecordRepository(pool *pgxpool.Pool) *LoginRecordRepository {
	return &LoginRecordRepository{pool: pool}
}

func (r *LoginRecordRepository) Create(ctx context.Context, rec models.LoginRecord) error {
	const insert = `
		INSERT INTO login_records (id, user_id, method, success, ip_address, user_agent, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	const prune = `
		DELETE FROM login_records WHERE id IN (
			SELECT id FROM login_records ORDER BY created_at DESC OFFSET $1
		)
	`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insert,
			rec.ID, rec.UserID, rec.Method, rec.Success, rec.IPAddress, rec.UserAgent, rec.ErrorMessage,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, prune, loginHistoryLimit)
		return err
	})
}

func (r *LoginRecordRepository) List(ctx context.Context, userID string, limit int) ([]models.LoginRecord, error) {
	const query = `
		SELECT id, user_id, method, success, ip_address, user_agent, error_message, created_at
		FROM login_records
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LoginRecord
	for rows.Next() {
		var rec models.LoginRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Method, &rec.Success, &rec.IPAddress, &rec.UserAgent, &rec.ErrorMessage, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
