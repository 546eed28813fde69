package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/borrowing"
	"wiselib/api/internal/cache"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

const (
	statsKey   = "stats:live"
	statsTTL   = 2 * time.Minute
	statsEvent = "stats"
)

type Stats struct {
	TotalBooks      int       `json:"totalBooks"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	ActiveBorrowers int       `json:"activeBorrowers"`
	BorrowedToday   int       `json:"borrowedToday"`
	ActiveLoans     int       `json:"activeLoans"`
	Overdue         int       `json:"overdue"`
	InsideLibrary   int       `json:"insideLibrary"`
	Consistent      bool      `json:"consistent"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

type StatsService struct {
	books    bookStore
	borrows  borrowStore
	sessions librarySessionStore
	rules    borrowing.Rules
	cache    *cache.Store
	pub      publisher
	log      zerolog.Logger
	now      func() time.Time
}

func NewStatsService(books bookStore, borrows borrowStore, sessions librarySessionStore, rules borrowing.Rules, store *cache.Store, pub publisher, log zerolog.Logger) *StatsService {
	return &StatsService{
		books:    books,
		borrows:  borrows,
		sessions: sessions,
		rules:    rules,
		cache:    store,
		pub:      pub,
		log:      log,
		now:      time.Now,
	}
}

// Live serves the cached figures, computing them on a miss.
func (s *StatsService) Live(ctx context.Context) (Stats, error) {
	var st Stats
	if s.cache != nil {
		found, err := s.cache.GetJSON(ctx, statsKey, &st)
		if err != nil {
			s.log.Warn().Err(err).Msg("read cached stats failed")
		} else if found {
			return st, nil
		}
	}
	return s.Refresh(ctx, false)
}

// Refresh recomputes and caches the figures, optionally pushing them to
// connected admins.
func (s *StatsService) Refresh(ctx context.Context, broadcast bool) (Stats, error) {
	st, err := s.Compute(ctx)
	if err != nil {
		return Stats{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, statsKey, st, statsTTL); err != nil {
			s.log.Warn().Err(err).Msg("cache stats failed")
		}
	}
	if broadcast && s.pub != nil {
		if err := s.pub.Publish(ctx, models.AdminReceiver, statsEvent, st); err != nil {
			s.log.Warn().Err(err).Msg("broadcast stats failed")
		}
	}
	if !st.Consistent {
		s.log.Error().Int("copies", st.TotalCopies).Int("available", st.AvailableCopies).Msg("catalogue availability exceeds copies")
	}
	return st, nil
}

func (s *StatsService) Compute(ctx context.Context) (Stats, error) {
	now := s.now()
	local := now.In(s.rules.Zone())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.rules.Zone())

	totals, err := s.books.Totals(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("catalogue totals: %w", err)
	}
	counts, err := s.borrows.Counts(ctx, dayStart)
	if err != nil {
		return Stats{}, fmt.Errorf("borrow counts: %w", err)
	}
	active, err := s.borrows.List(ctx, repository.BorrowFilter{ActiveOnly: true})
	if err != nil {
		return Stats{}, fmt.Errorf("active loans: %w", err)
	}
	inside, err := s.sessions.CountInside(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("library occupancy: %w", err)
	}

	overdue := 0
	for _, rec := range active {
		if s.rules.Check(rec, now).IsOverdue {
			overdue++
		}
	}

	return Stats{
		TotalBooks:      totals.Titles,
		TotalCopies:     totals.Copies,
		AvailableCopies: totals.Available,
		ActiveBorrowers: counts.ActiveBorrowers,
		BorrowedToday:   counts.BorrowedToday,
		ActiveLoans:     counts.Active,
		Overdue:         overdue,
		InsideLibrary:   inside,
		Consistent:      totals.Available <= totals.Copies,
		GeneratedAt:     now,
	}, nil
}
