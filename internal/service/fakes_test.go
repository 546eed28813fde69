package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wiselib/api/internal/cache"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

var fixedNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newTestCache(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewStore(client, "test"), mr
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; ok {
		return repository.ErrUserIDTaken
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByLogin(_ context.Context, login string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.ID, login) || strings.EqualFold(u.Email, login) {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUsers) update(id string, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(&u)
	f.users[id] = u
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, user models.User) error {
	return f.update(user.ID, func(u *models.User) { *u = user })
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id string, hash []byte) error {
	return f.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func (f *fakeUsers) SetTwoFactor(_ context.Context, id string, enabled bool, key string) error {
	return f.update(id, func(u *models.User) { u.TwoFactorEnabled, u.TwoFactorKey = enabled, key })
}

func (f *fakeUsers) SetQRCode(_ context.Context, id string, data string, at time.Time) error {
	return f.update(id, func(u *models.User) { u.QRCodeData, u.QRCodeGeneratedAt = data, &at })
}

func (f *fakeUsers) SetQRActive(_ context.Context, id string, active bool) error {
	return f.update(id, func(u *models.User) { u.QRCodeActive = active })
}

func (f *fakeUsers) SetActive(_ context.Context, id string, active bool) error {
	return f.update(id, func(u *models.User) { u.IsActive = active })
}

func (f *fakeUsers) SetAvatar(_ context.Context, id string, key string) error {
	return f.update(id, func(u *models.User) { u.AvatarKey = key })
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUsers) List(_ context.Context, filter repository.UserFilter) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if filter.Type != "" && u.Type != filter.Type {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]models.Session)}
}

func (f *fakeSessions) Upsert(_ context.Context, s models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.sessions {
		if existing.UserID == s.UserID && existing.DeviceID == s.DeviceID && id != s.ID {
			delete(f.sessions, id)
		}
	}
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessions) Trim(context.Context, string, int) error { return nil }

func (f *fakeSessions) FindByRefreshHash(_ context.Context, userID string, hash []byte) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && string(s.RefreshTokenHash) == string(hash) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (f *fakeSessions) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessions) DeleteByDevice(_ context.Context, userID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		if s.UserID == userID && s.DeviceID == deviceID {
			delete(f.sessions, id)
		}
	}
	return nil
}

func (f *fakeSessions) DeleteByUser(_ context.Context, userID, except string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		if s.UserID == userID && id != except {
			delete(f.sessions, id)
		}
	}
	return nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeLogins struct {
	mu      sync.Mutex
	records []models.LoginRecord
}

func (f *fakeLogins) Create(_ context.Context, rec models.LoginRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLogins) List(_ context.Context, userID string, limit int) ([]models.LoginRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LoginRecord
	for _, r := range f.records {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeNotifications struct {
	mu    sync.Mutex
	items []models.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	return nil
}

func (f *fakeNotifications) forReceiver(receiver string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.items {
		if n.ReceiverID == receiver {
			out = append(out, n)
		}
	}
	return out
}

func matches(receivers []string, id string) bool {
	for _, r := range receivers {
		if r == id {
			return true
		}
	}
	return false
}

func (f *fakeNotifications) ListForReceivers(_ context.Context, receivers []string, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for i := len(f.items) - 1; i >= 0 && len(out) < limit; i-- {
		if matches(receivers, f.items[i].ReceiverID) {
			out = append(out, f.items[i])
		}
	}
	return out, nil
}

func (f *fakeNotifications) CountUnread(_ context.Context, receivers []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, item := range f.items {
		if matches(receivers, item.ReceiverID) && item.Status == models.NotificationUnread {
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, id string, receivers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.ID == id && matches(receivers, item.ReceiverID) {
			f.items[i].Status = models.NotificationRead
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, receivers []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i, item := range f.items {
		if matches(receivers, item.ReceiverID) && item.Status == models.NotificationUnread {
			f.items[i].Status = models.NotificationRead
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) Delete(_ context.Context, id string, receivers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.ID == id && matches(receivers, item.ReceiverID) {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

type fakeActivity struct {
	mu    sync.Mutex
	items []models.Activity
}

func (f *fakeActivity) Create(_ context.Context, a models.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, a)
	return nil
}

func (f *fakeActivity) ListByUser(_ context.Context, userID string, limit int) ([]models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Activity
	for _, a := range f.items {
		if a.UserID == userID && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActivity) actions(userID string) []models.ActivityAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ActivityAction
	for _, a := range f.items {
		if a.UserID == userID {
			out = append(out, a.Action)
		}
	}
	return out
}

type fakeBooks struct {
	mu    sync.Mutex
	books map[string]models.Book
}

func newFakeBooks(books ...models.Book) *fakeBooks {
	f := &fakeBooks{books: make(map[string]models.Book)}
	for _, b := range books {
		f.books[b.ID] = b
	}
	return f
}

func (f *fakeBooks) Create(_ context.Context, b models.Book) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[b.ID]; ok {
		return repository.ErrBookExists
	}
	f.books[b.ID] = b
	return nil
}

func (f *fakeBooks) GetByID(_ context.Context, id string) (models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		return models.Book{}, repository.ErrBookNotFound
	}
	return b, nil
}

func (f *fakeBooks) Update(_ context.Context, b models.Book) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[b.ID]; !ok {
		return repository.ErrBookNotFound
	}
	f.books[b.ID] = b
	return nil
}

func (f *fakeBooks) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[id]; !ok {
		return repository.ErrBookNotFound
	}
	delete(f.books, id)
	return nil
}

func (f *fakeBooks) List(_ context.Context, filter repository.BookFilter) ([]models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Book
	for _, b := range f.books {
		if filter.Category != "" && b.Category != filter.Category {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBooks) Totals(context.Context) (repository.CatalogueTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t repository.CatalogueTotals
	for _, b := range f.books {
		t.Titles++
		t.Copies += b.Copies
		t.Available += b.Available
	}
	return t, nil
}

// fakeBorrows shares the catalogue with fakeBooks so availability moves with
// each loan.
type fakeBorrows struct {
	mu      sync.Mutex
	books   *fakeBooks
	records []models.BorrowRecord
	marked  []string
}

func (f *fakeBorrows) Borrow(_ context.Context, rec models.BorrowRecord, allow func(int) error) (models.BorrowRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if allow != nil {
		active := 0
		for _, r := range f.records {
			if r.StudentID == rec.StudentID && r.ReturnedAt == nil {
				active++
			}
		}
		if err := allow(active); err != nil {
			return models.BorrowRecord{}, err
		}
	}

	f.books.mu.Lock()
	defer f.books.mu.Unlock()
	book, ok := f.books.books[rec.BookID]
	if !ok {
		return models.BorrowRecord{}, repository.ErrBookNotFound
	}
	if book.Available <= 0 {
		return models.BorrowRecord{}, repository.ErrBookUnavailable
	}
	book.Available--
	f.books.books[rec.BookID] = book

	rec.BookTitle = book.Title
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeBorrows) Return(_ context.Context, id string, at time.Time) (models.BorrowRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.records {
		if rec.ID != id {
			continue
		}
		if rec.ReturnedAt != nil {
			return rec, true, nil
		}
		rec.ReturnedAt = &at
		rec.Status = models.BorrowStatusReturned
		f.records[i] = rec

		f.books.mu.Lock()
		book := f.books.books[rec.BookID]
		book.Available = min(book.Copies, book.Available+1)
		f.books.books[rec.BookID] = book
		f.books.mu.Unlock()
		return rec, false, nil
	}
	return models.BorrowRecord{}, false, repository.ErrBorrowNotFound
}

func (f *fakeBorrows) GetByID(_ context.Context, id string) (models.BorrowRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.BorrowRecord{}, repository.ErrBorrowNotFound
}

func (f *fakeBorrows) List(_ context.Context, filter repository.BorrowFilter) ([]models.BorrowRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BorrowRecord
	for _, rec := range f.records {
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		if filter.ActiveOnly && rec.ReturnedAt != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeBorrows) MarkOverdue(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, ids...)
	for i, rec := range f.records {
		for _, id := range ids {
			if rec.ID == id {
				f.records[i].Status = models.BorrowStatusOverdue
			}
		}
	}
	return nil
}

func (f *fakeBorrows) Counts(_ context.Context, dayStart time.Time) (repository.BorrowCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c repository.BorrowCounts
	borrowers := make(map[string]struct{})
	for _, rec := range f.records {
		if rec.ReturnedAt == nil {
			c.Active++
			borrowers[rec.StudentID] = struct{}{}
		}
		if !rec.BorrowedAt.Before(dayStart) {
			c.BorrowedToday++
		}
	}
	c.ActiveBorrowers = len(borrowers)
	return c, nil
}

type fakeLibrary struct {
	mu       sync.Mutex
	sessions []models.LibrarySession
}

func (f *fakeLibrary) LastAction(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := 0
	for _, s := range f.sessions {
		if s.UserID != userID {
			continue
		}
		n := s.ActionCount
		if s.ExitedAt != nil {
			n++
		}
		last = max(last, n)
	}
	return last, nil
}

func (f *fakeLibrary) FindOpen(_ context.Context, userID string) (models.LibrarySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == models.LibraryInside {
			return s, nil
		}
	}
	return models.LibrarySession{}, repository.ErrLibrarySessionNotFound
}

func (f *fakeLibrary) Create(_ context.Context, s models.LibrarySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeLibrary) MarkExited(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		if s.ID == id && s.ExitedAt == nil {
			f.sessions[i].Status = models.LibraryLoggedOut
			f.sessions[i].ExitedAt = &at
			return nil
		}
	}
	return repository.ErrLibrarySessionNotFound
}

func (f *fakeLibrary) ListInside(_ context.Context, before time.Time) ([]models.LibrarySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LibrarySession
	for _, s := range f.sessions {
		if s.Status != models.LibraryInside {
			continue
		}
		if !before.IsZero() && !s.EnteredAt.Before(before) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeLibrary) ListRecent(_ context.Context, limit int) ([]models.LibrarySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.LibrarySession, 0, len(f.sessions))
	for i := len(f.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.sessions[i])
	}
	return out, nil
}

func (f *fakeLibrary) CountInside(ctx context.Context) (int, error) {
	inside, err := f.ListInside(ctx, time.Time{})
	return len(inside), err
}

type fakeBadges struct {
	issued []string
	scans  map[string]ScanResult
}

func (f *fakeBadges) Issue(_ context.Context, user models.User) (QRCode, error) {
	f.issued = append(f.issued, user.ID)
	return QRCode{UserID: user.ID, Payload: "badge-" + user.ID, GeneratedAt: fixedNow}, nil
}

func (f *fakeBadges) Verify(_ context.Context, payload string) (ScanResult, error) {
	res, ok := f.scans[payload]
	if !ok {
		return ScanResult{}, ErrInvalidInput
	}
	return res, nil
}

type published struct {
	receiver string
	event    string
	data     any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakePublisher) Publish(_ context.Context, receiver, event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{receiver: receiver, event: event, data: data})
	return nil
}

func newTestNotifier(t *testing.T) (*NotificationService, *fakeNotifications, *fakePublisher) {
	t.Helper()
	store, _ := newTestCache(t)
	repo := &fakeNotifications{}
	pub := &fakePublisher{}
	svc := NewNotificationService(repo, store, pub, nil, zerolog.Nop())
	svc.now = clock
	svc.pick = func(int) int { return 0 }
	return svc, repo, pub
}

func testStudent() models.User {
	return models.User{
		ID:        "KC-23-A-00001",
		FirstName: "Ana",
		LastName:  "Reyes",
		FullName:  "Ana Reyes",
		Email:     "ana@example.edu",
		Type:      models.UserTypeStudent,
		IsActive:  true,
	}
}

func testAdmin() models.User {
	return models.User{
		ID:       "KCL-00001",
		FullName: "Library Admin",
		Email:    "admin@example.edu",
		Type:     models.UserTypeAdmin,
		IsActive: true,
	}
}
