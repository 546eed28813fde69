package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiselib/api/internal/models"
)

func TestStatsComputeAndCache(t *testing.T) {
	store, mr := newTestCache(t)
	books := newFakeBooks(SampleBook, models.Book{ID: "MATH-001", Title: "Calculus", Copies: 2, Available: 2})
	borrows := &fakeBorrows{books: books}
	library := &fakeLibrary{sessions: []models.LibrarySession{
		{ID: "s1", UserID: "KC-23-A-00001", Status: models.LibraryInside, EnteredAt: fixedNow},
	}}
	pub := &fakePublisher{}
	svc := NewStatsService(books, borrows, library, testRules(), store, pub, zerolog.Nop())
	svc.now = clock
	ctx := context.Background()

	_, err := borrows.Borrow(ctx, models.BorrowRecord{ID: "b1", BookID: "CS-AI-001", StudentID: "KC-23-A-00001", BorrowedAt: fixedNow, DueAt: fixedNow.Add(6 * time.Hour)}, nil)
	require.NoError(t, err)
	_, err = borrows.Borrow(ctx, models.BorrowRecord{
		ID: "b2", BookID: "MATH-001", StudentID: "KC-23-A-00002",
		BorrowedAt: time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC),
		DueAt:      time.Date(2025, 2, 20, 16, 0, 0, 0, time.UTC),
	}, nil)
	require.NoError(t, err)

	st, err := svc.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalBooks)
	assert.Equal(t, 5, st.TotalCopies)
	assert.Equal(t, 3, st.AvailableCopies)
	assert.Equal(t, 2, st.ActiveBorrowers)
	assert.Equal(t, 1, st.BorrowedToday)
	assert.Equal(t, 2, st.ActiveLoans)
	assert.Equal(t, 1, st.Overdue)
	assert.Equal(t, 1, st.InsideLibrary)
	assert.True(t, st.Consistent)
	assert.True(t, mr.Exists("test:"+statsKey))
	assert.Empty(t, pub.sent)

	books.books["MATH-001"] = models.Book{ID: "MATH-001", Copies: 10, Available: 10}
	cached, err := svc.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, cached.TotalCopies)

	fresh, err := svc.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 13, fresh.TotalCopies)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, models.AdminReceiver, pub.sent[0].receiver)
	assert.Equal(t, statsEvent, pub.sent[0].event)
}

func TestStatsFlagsInconsistentCatalogue(t *testing.T) {
	books := newFakeBooks(models.Book{ID: "BROKEN-1", Title: "Broken", Copies: 1, Available: 4})
	svc := NewStatsService(books, &fakeBorrows{books: books}, &fakeLibrary{}, testRules(), nil, nil, zerolog.Nop())
	svc.now = clock

	st, err := svc.Live(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Consistent)
}
