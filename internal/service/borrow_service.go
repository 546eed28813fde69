package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/borrowing"
	"wiselib/api/internal/ids"
	"wiselib/api/internal/metrics"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

const dueLayout = "Jan 2, 2006 3:04 PM"

type Loan struct {
	Record  models.BorrowRecord
	Overdue borrowing.Overdue
	Message string
}

type BorrowService struct {
	borrows  borrowStore
	users    userStore
	rules    borrowing.Rules
	notifier *NotificationService
	metrics  *metrics.Collector
	log      zerolog.Logger
	now      func() time.Time
}

func NewBorrowService(borrows borrowStore, users userStore, rules borrowing.Rules, notifier *NotificationService, m *metrics.Collector, log zerolog.Logger) *BorrowService {
	return &BorrowService{
		borrows:  borrows,
		users:    users,
		rules:    rules,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

type BorrowInput struct {
	BookID    string
	StudentID string
	Location  models.BorrowLocation
}

func (s *BorrowService) Borrow(ctx context.Context, input BorrowInput) (Loan, error) {
	student, err := s.users.GetByID(ctx, input.StudentID)
	if err != nil {
		return Loan{}, err
	}
	if student.Type != models.UserTypeStudent {
		return Loan{}, ErrNotStudent
	}
	if !student.IsActive {
		return Loan{}, ErrUserInactive
	}

	location := input.Location
	switch location {
	case "":
		location = models.BorrowInside
	case models.BorrowInside, models.BorrowOutside:
	default:
		return Loan{}, fmt.Errorf("%w: location must be inside or outside", ErrInvalidInput)
	}

	now := s.now()
	rec, err := s.borrows.Borrow(ctx, models.BorrowRecord{
		ID:         ids.New(),
		BookID:     input.BookID,
		StudentID:  student.ID,
		Location:   location,
		BorrowedAt: now,
		DueAt:      s.rules.DueDate(now, location),
		Status:     models.BorrowStatusBorrowed,
	}, s.rules.CanBorrow)
	if err != nil {
		return Loan{}, err
	}
	s.metrics.RecordCirculation("borrow")

	vars := map[string]string{
		"userId":    student.ID,
		"bookId":    rec.BookID,
		"bookTitle": rec.BookTitle,
		"dueAt":     rec.DueAt.In(s.rules.Zone()).Format(dueLayout),
	}
	s.notifier.Inform(ctx, NotifyInput{Receiver: student.ID, Event: EventBookBorrowed, Vars: vars})
	s.notifier.Inform(ctx, NotifyInput{Receiver: models.AdminReceiver, Event: EventBookBorrowed, Vars: vars})

	s.log.Info().Str("book_id", rec.BookID).Str("user_id", student.ID).Time("due_at", rec.DueAt).Msg("book borrowed")
	return s.loan(rec, now), nil
}

// Return closes a loan. Returning an already returned loan changes nothing
// and reports true.
func (s *BorrowService) Return(ctx context.Context, id string) (Loan, bool, error) {
	now := s.now()
	rec, already, err := s.borrows.Return(ctx, id, now)
	if err != nil {
		return Loan{}, false, err
	}
	if already {
		return s.loan(rec, now), true, nil
	}
	s.metrics.RecordCirculation("return")

	vars := map[string]string{"userId": rec.StudentID, "bookId": rec.BookID, "bookTitle": rec.BookTitle}
	s.notifier.Inform(ctx, NotifyInput{Receiver: rec.StudentID, Event: EventBookReturned, Vars: vars})
	s.notifier.Inform(ctx, NotifyInput{Receiver: models.AdminReceiver, Event: EventBookReturned, Vars: vars})

	loan := s.loan(rec, now)
	s.log.Info().Str("book_id", rec.BookID).Str("user_id", rec.StudentID).Int("fine", loan.Overdue.Fine).Msg("book returned")
	return loan, false, nil
}

// List returns loans newest first with their overdue state evaluated now.
// Open loans that crossed the threshold are persisted as overdue.
func (s *BorrowService) List(ctx context.Context, studentID string, activeOnly bool) ([]Loan, error) {
	recs, err := s.borrows.List(ctx, repository.BorrowFilter{StudentID: studentID, ActiveOnly: activeOnly})
	if err != nil {
		return nil, err
	}
	now := s.now()
	loans := make([]Loan, 0, len(recs))
	var flagged []string
	for _, rec := range recs {
		loan := s.loan(rec, now)
		if loan.Record.Status == models.BorrowStatusOverdue && rec.Status != models.BorrowStatusOverdue {
			flagged = append(flagged, rec.ID)
		}
		loans = append(loans, loan)
	}
	if err := s.borrows.MarkOverdue(ctx, flagged); err != nil {
		s.log.Warn().Err(err).Int("count", len(flagged)).Msg("persist overdue status failed")
	}
	return loans, nil
}

func (s *BorrowService) loan(rec models.BorrowRecord, now time.Time) Loan {
	o := s.rules.Check(rec, now)
	if rec.ReturnedAt == nil && o.IsOverdue {
		rec.Status = models.BorrowStatusOverdue
	}
	return Loan{Record: rec, Overdue: o, Message: s.rules.Message(o)}
}

// SweepOverdue marks overdue loans and reminds the borrower and the admins
// once per loan per day.
func (s *BorrowService) SweepOverdue(ctx context.Context) (int, error) {
	recs, err := s.borrows.List(ctx, repository.BorrowFilter{ActiveOnly: true})
	if err != nil {
		return 0, err
	}
	now := s.now()
	day := now.In(s.rules.Zone()).Format("2006-01-02")

	var overdue []string
	for _, rec := range recs {
		o := s.rules.Check(rec, now)
		if !o.IsOverdue {
			continue
		}
		overdue = append(overdue, rec.ID)

		vars := map[string]string{
			"userId":    rec.StudentID,
			"bookId":    rec.BookID,
			"bookTitle": rec.BookTitle,
			"dueAt":     rec.DueAt.In(s.rules.Zone()).Format(dueLayout),
			"fine":      strconv.Itoa(o.Fine),
		}
		key := "overdue:" + rec.ID + ":" + day
		s.notifier.Inform(ctx, NotifyInput{Receiver: rec.StudentID, Event: EventBookOverdue, Vars: vars, DedupKey: key})
		s.notifier.Inform(ctx, NotifyInput{Receiver: models.AdminReceiver, Event: EventBookOverdue, Vars: vars, DedupKey: key})
	}
	if err := s.borrows.MarkOverdue(ctx, overdue); err != nil {
		return 0, err
	}
	if len(overdue) > 0 {
		s.log.Info().Int("count", len(overdue)).Msg("overdue loans flagged")
	}
	return len(overdue), nil
}

func (s *BorrowService) Rules() borrowing.Rules {
	return s.rules
}
