package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n models.Notification) error {
	const query = `
		INSERT INTO notifications (id, receiver_id, title, message, type, status, action_required, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	meta := n.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	_, err := r.pool.Exec(ctx, query,
		n.ID, n.ReceiverID, n.Title, n.Message, n.Type, n.Status, n.ActionRequired, meta, n.CreatedAt,
	)
	return err
}

// ListForReceivers returns notifications for any of the receivers, newest
// first.
func (r *NotificationRepository) ListForReceivers(ctx context.Context, receivers []string, limit int) ([]models.Notification, error) {
	const query = `
		SELECT id, receiver_id, title, message, type, status, action_required, meta, created_at
		FROM notifications
		WHERE receiver_id = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, receivers, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Notification, error) {
		var n models.Notification
		err := row.Scan(&n.ID, &n.ReceiverID, &n.Title, &n.Message, &n.Type, &n.Status, &n.ActionRequired, &n.Meta, &n.CreatedAt)
		return n, err
	})
}

func (r *NotificationRepository) CountUnread(ctx context.Context, receivers []string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE receiver_id = ANY($1) AND status = 'unread'`
	var n int
	err := r.pool.QueryRow(ctx, query, receivers).Scan(&n)
	return n, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string, receivers []string) error {
	const query = `UPDATE notifications SET status = 'read' WHERE id = $1 AND receiver_id = ANY($2)`
	cmd, err := r.pool.Exec(ctx, query, id, receivers)
	return affected(cmd, err, ErrNotificationNotFound)
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, receivers []string) (int64, error) {
	const query = `UPDATE notifications SET status = 'read' WHERE receiver_id = ANY($1) AND status = 'unread'`
	cmd, err := r.pool.Exec(ctx, query, receivers)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string, receivers []string) error {
	const query = `DELETE FROM notifications WHERE id = $1 AND receiver_id = ANY($2)`
	cmd, err := r.pool.Exec(ctx, query, id, receivers)
	return affected(cmd, err, ErrNotificationNotFound)
}
