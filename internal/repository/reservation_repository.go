package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

var ErrReservationNotFound = errors.New("reservation not found")

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) Create(ctx context.Context, res models.Reservation) error {
	const query = `
		INSERT INTO reservations (id, book_id, book_title, student_id, student_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, res.ID, res.BookID, res.BookTitle, res.StudentID, res.StudentName, res.CreatedAt)
	return err
}

// List returns reservations newest first, optionally for one book.
func (r *ReservationRepository) List(ctx context.Context, bookID string) ([]models.Reservation, error) {
	const query = `
		SELECT id, book_id, book_title, student_id, student_name, created_at
		FROM reservations
		WHERE ($1 = '' OR book_id = $1)
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Reservation, error) {
		var res models.Reservation
		err := row.Scan(&res.ID, &res.BookID, &res.BookTitle, &res.StudentID, &res.StudentName, &res.CreatedAt)
		return res, err
	})
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (models.Reservation, error) {
	const query = `
		SELECT id, book_id, book_title, student_id, student_name, created_at
		FROM reservations WHERE id = $1
	`
	var res models.Reservation
	err := r.pool.QueryRow(ctx, query, id).Scan(&res.ID, &res.BookID, &res.BookTitle, &res.StudentID, &res.StudentName, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Reservation{}, ErrReservationNotFound
	}
	return res, err
}

func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM reservations WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	return affected(cmd, err, ErrReservationNotFound)
}
