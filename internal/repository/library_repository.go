package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

var ErrLibrarySessionNotFound = errors.New("library session not found")

const librarySessionColumns = `id, user_id, user_type, full_name, method, status, action_count, entered_at, exited_at`

type LibrarySessionRepository struct {
	pool *pgxpool.Pool
}

func NewLibrarySessionRepository(pool *pgxpool.Pool) *LibrarySessionRepository {
	return &LibrarySessionRepository{pool: pool}
}

func scanLibrarySession(row pgx.Row) (models.LibrarySession, error) {
	var s models.LibrarySession
	err := row.Scan(&s.ID, &s.UserID, &s.UserType, &s.FullName, &s.Method, &s.Status, &s.ActionCount, &s.EnteredAt, &s.ExitedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LibrarySession{}, ErrLibrarySessionNotFound
	}
	return s, err
}

// LastAction returns the highest action number recorded for a user, zero
// when the user never visited.
func (r *LibrarySessionRepository) LastAction(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COALESCE(MAX(CASE WHEN exited_at IS NULL THEN action_count ELSE action_count + 1 END), 0)
		FROM library_sessions WHERE user_id = $1
	`
	var n int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&n)
	return n, err
}

func (r *LibrarySessionRepository) FindOpen(ctx context.Context, userID string) (models.LibrarySession, error) {
	query := `SELECT ` + librarySessionColumns + ` FROM library_sessions
		WHERE user_id = $1 AND status = 'inside_library'
		ORDER BY entered_at DESC LIMIT 1`
	return scanLibrarySession(r.pool.QueryRow(ctx, query, userID))
}

func (r *LibrarySessionRepository) Create(ctx context.Context, s models.LibrarySession) error {
	const query = `
		INSERT INTO library_sessions (id, user_id, user_type, full_name, method, status, action_count, entered_at, exited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
	`
	_, err := r.pool.Exec(ctx, query, s.ID, s.UserID, s.UserType, s.FullName, s.Method, s.Status, s.ActionCount, s.EnteredAt)
	return err
}

func (r *LibrarySessionRepository) MarkExited(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE library_sessions SET status = 'logged_out', exited_at = $2 WHERE id = $1 AND exited_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id, at)
	return affected(cmd, err, ErrLibrarySessionNotFound)
}

// ListInside returns open sessions that started before the cutoff; a zero
// cutoff returns all of them.
func (r *LibrarySessionRepository) ListInside(ctx context.Context, enteredBefore time.Time) ([]models.LibrarySession, error) {
	query := `SELECT ` + librarySessionColumns + ` FROM library_sessions
		WHERE status = 'inside_library' AND ($1::timestamptz IS NULL OR entered_at < $1)
		ORDER BY entered_at ASC`

	var cutoff *time.Time
	if !enteredBefore.IsZero() {
		cutoff = &enteredBefore
	}
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LibrarySession
	for rows.Next() {
		s, err := scanLibrarySession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *LibrarySessionRepository) ListRecent(ctx context.Context, limit int) ([]models.LibrarySession, error) {
	query := `SELECT ` + librarySessionColumns + ` FROM library_sessions ORDER BY entered_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LibrarySession
	for rows.Next() {
		s, err := scanLibrarySession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *LibrarySessionRepository) CountInside(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM library_sessions WHERE status = 'inside_library'`
	var n int
	err := r.pool.QueryRow(ctx, query).Scan(&n)
	return n, err
}
