package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/ids"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

var ErrNotOwner = errors.New("reservation belongs to another student")

type ReservationService struct {
	reservations reservationStore
	books        bookStore
	users        userStore
	notifier     *NotificationService
	log          zerolog.Logger
	now          func() time.Time
}

func NewReservationService(reservations reservationStore, books bookStore, users userStore, notifier *NotificationService, log zerolog.Logger) *ReservationService {
	return &ReservationService{
		reservations: reservations,
		books:        books,
		users:        users,
		notifier:     notifier,
		log:          log,
		now:          time.Now,
	}
}

func (s *ReservationService) Reserve(ctx context.Context, bookID, studentID string) (models.Reservation, error) {
	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		return models.Reservation{}, err
	}
	if student.Type != models.UserTypeStudent {
		return models.Reservation{}, ErrNotStudent
	}
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return models.Reservation{}, err
	}

	res := models.Reservation{
		ID:          ids.New(),
		BookID:      book.ID,
		BookTitle:   book.Title,
		StudentID:   student.ID,
		StudentName: student.FullName,
		CreatedAt:   s.now(),
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		return models.Reservation{}, err
	}

	vars := map[string]string{"userId": student.ID, "bookId": book.ID, "bookTitle": book.Title}
	s.notifier.Inform(ctx, NotifyInput{Receiver: models.AdminReceiver, Event: EventBookReserved, Vars: vars})
	return res, nil
}

// List returns reservations for one book, or all when bookID is empty.
func (s *ReservationService) List(ctx context.Context, bookID string) ([]models.Reservation, error) {
	return s.reservations.List(ctx, bookID)
}

// Cancel removes a reservation. Students may only cancel their own.
func (s *ReservationService) Cancel(ctx context.Context, actor models.User, id string) error {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if actor.Type != models.UserTypeAdmin && res.StudentID != actor.ID {
		return ErrNotOwner
	}
	if err := s.reservations.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil
		}
		return err
	}
	return nil
}
