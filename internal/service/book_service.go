package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

var bookIDPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,31}$`)

// SampleBook is added when the catalogue is empty.
var SampleBook = models.Book{
	ID:        "CS-AI-001",
	Title:     "Introduction to Artificial Intelligence",
	Author:    "Stuart Russell",
	Category:  "Computer Science",
	ISBN:      "978-0134610993",
	Shelf:     "CS-A1",
	Copies:    3,
	Available: 3,
	Status:    models.BookStatusAvailable,
}

type BookService struct {
	books     bookStore
	sanitizer *bluemonday.Policy
	log       zerolog.Logger
}

func NewBookService(books bookStore, log zerolog.Logger) *BookService {
	return &BookService{books: books, sanitizer: bluemonday.StrictPolicy(), log: log}
}

type BookInput struct {
	ID       string
	Title    string
	Author   string
	Category string
	ISBN     string
	Shelf    string
	Copies   int
}

func (s *BookService) clean(v string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(v))
}

func (s *BookService) Create(ctx context.Context, input BookInput) (models.Book, error) {
	id := strings.ToUpper(strings.TrimSpace(input.ID))
	if !bookIDPattern.MatchString(id) {
		return models.Book{}, fmt.Errorf("%w: book code must be 2-32 letters, digits or dashes", ErrInvalidInput)
	}
	if input.Copies < 0 {
		return models.Book{}, fmt.Errorf("%w: copies cannot be negative", ErrInvalidInput)
	}

	book := models.Book{
		ID:        id,
		Title:     s.clean(input.Title),
		Author:    s.clean(input.Author),
		Category:  s.clean(input.Category),
		ISBN:      s.clean(input.ISBN),
		Shelf:     s.clean(input.Shelf),
		Copies:    input.Copies,
		Available: input.Copies,
	}
	if book.Title == "" {
		return models.Book{}, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	book.Status = statusFor(book)

	if err := s.books.Create(ctx, book); err != nil {
		return models.Book{}, err
	}
	s.log.Info().Str("book_id", book.ID).Msg("book added")
	return s.books.GetByID(ctx, book.ID)
}

// Update edits a book. Changing the number of copies keeps the copies that
// are out on loan counted.
func (s *BookService) Update(ctx context.Context, id string, input BookInput) (models.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		return models.Book{}, err
	}
	if input.Copies < 0 {
		return models.Book{}, fmt.Errorf("%w: copies cannot be negative", ErrInvalidInput)
	}

	if v := s.clean(input.Title); v != "" {
		book.Title = v
	}
	book.Author = s.clean(input.Author)
	book.Category = s.clean(input.Category)
	book.ISBN = s.clean(input.ISBN)
	book.Shelf = s.clean(input.Shelf)

	onLoan := book.Copies - book.Available
	book.Copies = input.Copies
	book.Available = max(0, input.Copies-onLoan)
	book.Status = statusFor(book)

	if err := s.books.Update(ctx, book); err != nil {
		return models.Book{}, err
	}
	return book, nil
}

func statusFor(book models.Book) models.BookStatus {
	if book.Available <= 0 {
		return models.BookStatusUnavailable
	}
	return models.BookStatusAvailable
}

func (s *BookService) Get(ctx context.Context, id string) (models.Book, error) {
	return s.books.GetByID(ctx, strings.ToUpper(strings.TrimSpace(id)))
}

func (s *BookService) List(ctx context.Context, search, category string) ([]models.Book, error) {
	return s.books.List(ctx, repository.BookFilter{Search: search, Category: category})
}

func (s *BookService) Delete(ctx context.Context, id string) error {
	return s.books.Delete(ctx, id)
}

// SeedSample adds the sample book when the catalogue is empty.
func (s *BookService) SeedSample(ctx context.Context) (bool, error) {
	totals, err := s.books.Totals(ctx)
	if err != nil {
		return false, err
	}
	if totals.Titles > 0 {
		return false, nil
	}
	if err := s.books.Create(ctx, SampleBook); err != nil {
		return false, err
	}
	s.log.Info().Str("book_id", SampleBook.ID).Msg("seeded sample book")
	return true, nil
}
