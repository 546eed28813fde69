package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

var ErrBorrowNotFound = errors.New("borrow record not found")

const borrowColumns = `id, book_id, book_title, student_id, location, borrowed_at, due_at, returned_at, status`

type BorrowRepository struct {
	pool *pgxpool.Pool
}

func NewBorrowRepository(pool *pgxpool.Pool) *BorrowRepository {
	return &BorrowRepository{pool: pool}
}

func scanBorrow(row pgx.Row) (models.BorrowRecord, error) {
	var rec models.BorrowRecord
	err := row.Scan(
		&rec.ID,
		&rec.BookID,
		&rec.BookTitle,
		&rec.StudentID,
		&rec.Location,
		&rec.BorrowedAt,
		&rec.DueAt,
		&rec.ReturnedAt,
		&rec.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BorrowRecord{}, ErrBorrowNotFound
	}
	return rec, err
}

// Borrow takes one copy of the book and stores the record in a single
// transaction. The student row stays locked while allow is given the number
// of open loans, so concurrent borrows by one student are serialized. The
// book title on the record is filled from the catalogue.
func (r *BorrowRepository) Borrow(ctx context.Context, rec models.BorrowRecord, allow func(active int) error) (models.BorrowRecord, error) {
	const student = `SELECT id FROM users WHERE id = $1 FOR UPDATE`
	const active = `SELECT COUNT(*) FROM borrow_records WHERE student_id = $1 AND returned_at IS NULL`
	const take = `
		UPDATE books SET
			available = available - 1,
			status = CASE WHEN available - 1 = 0 THEN 'unavailable' ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND available > 0 AND status = 'available'
		RETURNING title
	`
	const exists = `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`
	const insert = `
		INSERT INTO borrow_records (id, book_id, book_title, student_id, location, borrowed_at, due_at, returned_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)
	`

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, student, rec.StudentID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		if allow != nil {
			var n int
			if err := tx.QueryRow(ctx, active, rec.StudentID).Scan(&n); err != nil {
				return err
			}
			if err := allow(n); err != nil {
				return err
			}
		}
		if err := tx.QueryRow(ctx, take, rec.BookID).Scan(&rec.BookTitle); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			var found bool
			if err := tx.QueryRow(ctx, exists, rec.BookID).Scan(&found); err != nil {
				return err
			}
			if !found {
				return ErrBookNotFound
			}
			return ErrBookUnavailable
		}
		_, err := tx.Exec(ctx, insert,
			rec.ID, rec.BookID, rec.BookTitle, rec.StudentID, rec.Location, rec.BorrowedAt, rec.DueAt, rec.Status,
		)
		return err
	})
	return rec, err
}

// Return closes a borrow record. Returning twice is a no-op reported through
// the second result.
func (r *BorrowRepository) Return(ctx context.Context, id string, at time.Time) (models.BorrowRecord, bool, error) {
	const lock = `SELECT ` + borrowColumns + ` FROM borrow_records WHERE id = $1 FOR UPDATE`
	const finish = `UPDATE borrow_records SET returned_at = $2, status = 'returned' WHERE id = $1`
	const restore = `
		UPDATE books SET
			available = LEAST(copies, available + 1),
			status = 'available',
			updated_at = NOW()
		WHERE id = $1
	`

	var (
		rec     models.BorrowRecord
		already bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		rec, err = scanBorrow(tx.QueryRow(ctx, lock, id))
		if err != nil {
			return err
		}
		if rec.ReturnedAt != nil {
			already = true
			return nil
		}
		if _, err := tx.Exec(ctx, finish, id, at); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, restore, rec.BookID); err != nil {
			return err
		}
		rec.ReturnedAt = &at
		rec.Status = models.BorrowStatusReturned
		return nil
	})
	return rec, already, err
}

func (r *BorrowRepository) GetByID(ctx context.Context, id string) (models.BorrowRecord, error) {
	query := `SELECT ` + borrowColumns + ` FROM borrow_records WHERE id = $1`
	return scanBorrow(r.pool.QueryRow(ctx, query, id))
}

type BorrowFilter struct {
	StudentID  string
	ActiveOnly bool
}

func (r *BorrowRepository) List(ctx context.Context, filter BorrowFilter) ([]models.BorrowRecord, error) {
	query := `SELECT ` + borrowColumns + ` FROM borrow_records
		WHERE ($1 = '' OR student_id = $1) AND (NOT $2 OR returned_at IS NULL)
		ORDER BY borrowed_at DESC`

	rows, err := r.pool.Query(ctx, query, filter.StudentID, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BorrowRecord
	for rows.Next() {
		rec, err := scanBorrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *BorrowRepository) MarkOverdue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE borrow_records SET status = 'overdue' WHERE id = ANY($1) AND returned_at IS NULL`
	_, err := r.pool.Exec(ctx, query, ids)
	return err
}

type BorrowCounts struct {
	ActiveBorrowers int
	BorrowedToday   int
	Active          int
}

func (r *BorrowRepository) Counts(ctx context.Context, dayStart time.Time) (BorrowCounts, error) {
	const query = `
		SELECT
			COUNT(DISTINCT student_id) FILTER (WHERE returned_at IS NULL),
			COUNT(*) FILTER (WHERE borrowed_at >= $1),
			COUNT(*) FILTER (WHERE returned_at IS NULL)
		FROM borrow_records
	`
	var c BorrowCounts
	err := r.pool.QueryRow(ctx, query, dayStart).Scan(&c.ActiveBorrowers, &c.BorrowedToday, &c.Active)
	return c, err
}
