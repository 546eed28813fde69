package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrBookExists      = errors.New("book code already exists")
	ErrBookUnavailable = errors.New("book has no available copies")
)

const bookColumns = `id, title, author, category, isbn, shelf, copies, available, status, created_at, updated_at`

type BookRepository struct {
	pool *pgxpool.Pool
}

func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

func scanBook(row pgx.Row) (models.Book, error) {
	var book models.Book
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Category,
		&book.ISBN,
		&book.Shelf,
		&book.Copies,
		&book.Available,
		&book.Status,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Book{}, ErrBookNotFound
	}
	return book, err
}

func (r *BookRepository) Create(ctx context.Context, book models.Book) error {
	const query = `
		INSERT INTO books (id, title, author, category, isbn, shelf, copies, available, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		book.ID, book.Title, book.Author, book.Category, book.ISBN, book.Shelf,
		book.Copies, book.Available, book.Status,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrBookExists
	}
	return err
}

func (r *BookRepository) GetByID(ctx context.Context, id string) (models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	return scanBook(r.pool.QueryRow(ctx, query, id))
}

func (r *BookRepository) Update(ctx context.Context, book models.Book) error {
	const query = `
		UPDATE books SET
			title = $2, author = $3, category = $4, isbn = $5, shelf = $6,
			copies = $7, available = $8, status = $9, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		book.ID, book.Title, book.Author, book.Category, book.ISBN, book.Shelf,
		book.Copies, book.Available, book.Status,
	)
	return affected(cmd, err, ErrBookNotFound)
}

func (r *BookRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM books WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	return affected(cmd, err, ErrBookNotFound)
}

type BookFilter struct {
	Search   string
	Category string
}

func (r *BookRepository) List(ctx context.Context, filter BookFilter) ([]models.Book, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d OR isbn ILIKE $%d OR id ILIKE $%d)", n, n, n, n))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	query := `SELECT ` + bookColumns + ` FROM books`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY title ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

type CatalogueTotals struct {
	Titles    int
	Copies    int
	Available int
}

func (r *BookRepository) Totals(ctx context.Context) (CatalogueTotals, error) {
	const query = `SELECT COUNT(*), COALESCE(SUM(copies), 0), COALESCE(SUM(available), 0) FROM books`
	var t CatalogueTotals
	err := r.pool.QueryRow(ctx, query).Scan(&t.Titles, &t.Copies, &t.Available)
	return t, err
}
