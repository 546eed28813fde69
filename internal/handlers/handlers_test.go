package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiselib/api/internal/borrowing"
	"wiselib/api/internal/config"
	"wiselib/api/internal/envelope"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
	"wiselib/api/internal/security"
	"wiselib/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	studentID = "KC-23-A-00001"
	adminID   = "KCL-00001"
)

type memUsers map[string]models.User

func (m memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := m[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m memUsers) Create(context.Context, models.User) error { return nil }
func (m memUsers) FindByLogin(ctx context.Context, login string) (models.User, error) {
	return m.GetByID(ctx, login)
}
func (m memUsers) UpdateProfile(context.Context, models.User) error           { return nil }
func (m memUsers) UpdatePassword(context.Context, string, []byte) error       { return nil }
func (m memUsers) SetTwoFactor(context.Context, string, bool, string) error   { return nil }
func (m memUsers) SetQRCode(context.Context, string, string, time.Time) error { return nil }
func (m memUsers) SetQRActive(context.Context, string, bool) error            { return nil }
func (m memUsers) SetActive(context.Context, string, bool) error              { return nil }
func (m memUsers) SetAvatar(context.Context, string, string) error            { return nil }
func (m memUsers) Delete(context.Context, string) error                       { return nil }
func (m memUsers) List(context.Context, repository.UserFilter) ([]models.User, error) {
	return nil, nil
}

type memSessions map[string]models.Session

func (m memSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	s, ok := m[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m memSessions) Touch(context.Context, string, string, string) error { return nil }

type memBooks map[string]models.Book

func (m memBooks) Create(_ context.Context, b models.Book) error {
	if _, ok := m[b.ID]; ok {
		return repository.ErrBookExists
	}
	m[b.ID] = b
	return nil
}

func (m memBooks) GetByID(_ context.Context, id string) (models.Book, error) {
	b, ok := m[id]
	if !ok {
		return models.Book{}, repository.ErrBookNotFound
	}
	return b, nil
}

func (m memBooks) Update(_ context.Context, b models.Book) error {
	m[b.ID] = b
	return nil
}

func (m memBooks) Delete(_ context.Context, id string) error {
	delete(m, id)
	return nil
}

func (m memBooks) List(context.Context, repository.BookFilter) ([]models.Book, error) {
	out := make([]models.Book, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memBooks) Totals(context.Context) (repository.CatalogueTotals, error) {
	return repository.CatalogueTotals{Titles: len(m)}, nil
}

type memBorrows struct {
	books   memBooks
	records []models.BorrowRecord
	active  int
}

func (m *memBorrows) Borrow(_ context.Context, rec models.BorrowRecord, allow func(int) error) (models.BorrowRecord, error) {
	if allow != nil {
		if err := allow(m.active); err != nil {
			return models.BorrowRecord{}, err
		}
	}
	book, ok := m.books[rec.BookID]
	if !ok {
		return models.BorrowRecord{}, repository.ErrBookNotFound
	}
	if book.Available <= 0 {
		return models.BorrowRecord{}, repository.ErrBookUnavailable
	}
	book.Available--
	m.books[book.ID] = book
	rec.BookTitle = book.Title
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memBorrows) Return(context.Context, string, time.Time) (models.BorrowRecord, bool, error) {
	return models.BorrowRecord{}, false, repository.ErrBorrowNotFound
}

func (m *memBorrows) GetByID(context.Context, string) (models.BorrowRecord, error) {
	return models.BorrowRecord{}, repository.ErrBorrowNotFound
}

func (m *memBorrows) List(_ context.Context, f repository.BorrowFilter) ([]models.BorrowRecord, error) {
	var out []models.BorrowRecord
	for _, r := range m.records {
		if f.StudentID == "" || r.StudentID == f.StudentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memBorrows) MarkOverdue(context.Context, []string) error { return nil }
func (m *memBorrows) Counts(context.Context, time.Time) (repository.BorrowCounts, error) {
	return repository.BorrowCounts{}, nil
}

type memNotifications struct {
	items []models.Notification
}

func (m *memNotifications) Create(_ context.Context, n models.Notification) error {
	m.items = append(m.items, n)
	return nil
}

func (m *memNotifications) ListForReceivers(_ context.Context, receivers []string, _ int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range m.items {
		for _, r := range receivers {
			if n.ReceiverID == r {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (m *memNotifications) CountUnread(ctx context.Context, receivers []string) (int, error) {
	items, _ := m.ListForReceivers(ctx, receivers, 0)
	count := 0
	for _, n := range items {
		if n.Status == models.NotificationUnread {
			count++
		}
	}
	return count, nil
}

func (m *memNotifications) MarkRead(context.Context, string, []string) error { return nil }
func (m *memNotifications) MarkAllRead(context.Context, []string) (int64, error) {
	return int64(len(m.items)), nil
}
func (m *memNotifications) Delete(context.Context, string, []string) error {
	return repository.ErrNotificationNotFound
}

type fixture struct {
	router  *gin.Engine
	cfg     *config.AppConfig
	books   memBooks
	borrows *memBorrows
	notes   *memNotifications
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()
	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret: "access-secret",
			SignatureSecret: "signature-secret",
		},
	}
	log := zerolog.Nop()

	users := memUsers{
		studentID: {ID: studentID, FullName: "Ana Reyes", Type: models.UserTypeStudent, IsActive: true},
		adminID:   {ID: adminID, FullName: "Librarian", Type: models.UserTypeAdmin, IsActive: true},
	}
	sessions := memSessions{
		"s-student": {ID: "s-student", UserID: studentID, DeviceID: "d1"},
		"s-admin":   {ID: "s-admin", UserID: adminID, DeviceID: "d2"},
	}
	books := memBooks{
		"CS-AI-001": {ID: "CS-AI-001", Title: "Introduction to Artificial Intelligence", Copies: 1, Available: 1, Status: models.BookStatusAvailable},
	}
	borrows := &memBorrows{books: books}
	notes := &memNotifications{}

	rules := borrowing.DefaultRules()
	rules.Location = time.UTC

	svc := Services{
		Books:         service.NewBookService(books, log),
		Borrows:       service.NewBorrowService(borrows, users, rules, nil, nil, log),
		Notifications: service.NewNotificationService(notes, nil, nil, nil, log),
	}
	deps.Users = users
	deps.Sessions = sessions

	r := gin.New()
	NewHandlerSet(log, cfg, svc, deps).Register(&r.RouterGroup)
	return &fixture{router: r, cfg: cfg, books: books, borrows: borrows, notes: notes}
}

func (f *fixture) do(t *testing.T, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		userID, deviceID := studentID, "d1"
		if sessionID == "s-admin" {
			userID, deviceID = adminID, "d2"
		}
		tok, err := security.GenerateAccessToken(f.cfg.Security.JWTAccessSecret, security.AccessTokenInput{
			UserID: userID, SessionID: sessionID, DeviceID: deviceID, TTL: time.Minute,
		})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Deps{
		Database: func(context.Context) error { return nil },
		Cache:    func(context.Context) error { return nil },
	})
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "test", body["environment"])

	f = newFixture(t, Deps{Database: func(context.Context) error { return errors.New("down") }})
	w = f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body = decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unknown", body["cache"])
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("lookup: %w", repository.ErrBookNotFound), http.StatusNotFound, "book_not_found"},
		{fmt.Errorf("%w (3 books)", borrowing.ErrLimitReached), http.StatusConflict, "borrow_limit_reached"},
		{&envelope.ValidationError{Kind: envelope.ErrWrongSystem}, http.StatusUnprocessableEntity, "wrong_system"},
		{&envelope.ValidationError{Kind: envelope.ErrRecordNotFound}, http.StatusUnprocessableEntity, "record_not_found"},
		{envelope.ErrRecordNotFound, http.StatusNotFound, "qr_not_found"},
		{service.ErrAIUnavailable, http.StatusServiceUnavailable, "ai_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newFixture(t, Deps{})
	w := f.do(t, http.MethodGet, "/api/books", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBooks(t *testing.T) {
	f := newFixture(t, Deps{})
	book := map[string]any{"id": "ma-101", "title": "Calculus", "copies": 2}

	w := f.do(t, http.MethodPost, "/api/books", "s-student", book)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/books", "s-admin", book)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "MA-101", body["id"])
	assert.Equal(t, float64(2), body["available"])

	w = f.do(t, http.MethodPost, "/api/books", "s-admin", book)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "book_exists", decode(t, w)["error"])

	w = f.do(t, http.MethodGet, "/api/books", "s-student", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	assert.Len(t, items, 2)

	w = f.do(t, http.MethodGet, "/api/books/missing", "s-student", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/books", "s-admin", map[string]any{"id": "MA-102"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode(t, w)["error"])
}

func TestBorrow(t *testing.T) {
	f := newFixture(t, Deps{})

	w := f.do(t, http.MethodPost, "/api/borrows", "s-student", map[string]any{"bookId": "CS-AI-001", "studentId": adminID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, studentID, body["studentId"])
	assert.Equal(t, "inside", body["location"])
	assert.Equal(t, false, body["isOverdue"])
	assert.Equal(t, 0, f.books["CS-AI-001"].Available)

	w = f.do(t, http.MethodPost, "/api/borrows", "s-student", map[string]any{"bookId": "CS-AI-001"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "book_unavailable", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/borrows", "s-admin", map[string]any{"bookId": "CS-AI-001"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.borrows.active = 3
	w = f.do(t, http.MethodPost, "/api/borrows", "s-admin", map[string]any{"bookId": "CS-AI-001", "studentId": studentID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "borrow_limit_reached", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/borrows", "s-admin", map[string]any{"bookId": "CS-AI-001", "studentId": adminID, "location": "outside"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_student", decode(t, w)["error"])

	w = f.do(t, http.MethodGet, "/api/borrows", "s-student", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"].([]any), 1)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t, Deps{})
	now := time.Now()
	f.notes.items = []models.Notification{
		{ID: "n1", ReceiverID: studentID, Title: "Book Borrowed", Status: models.NotificationUnread, CreatedAt: now},
		{ID: "n2", ReceiverID: models.AdminReceiver, Title: "Library Entry", Status: models.NotificationUnread, CreatedAt: now},
		{ID: "n3", ReceiverID: adminID, Title: "Security", Status: models.NotificationRead, CreatedAt: now},
	}

	w := f.do(t, http.MethodGet, "/api/notifications", "s-student", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["items"].([]any), 1)
	assert.Equal(t, float64(1), body["unread"])

	w = f.do(t, http.MethodGet, "/api/notifications", "s-admin", nil)
	body = decode(t, w)
	assert.Len(t, body["items"].([]any), 2)
	assert.Equal(t, float64(1), body["unread"])

	w = f.do(t, http.MethodDelete, "/api/notifications/n1", "s-admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKioskRoutesNeedSignature(t *testing.T) {
	f := newFixture(t, Deps{})
	w := f.do(t, http.MethodPost, "/api/kiosk/scan", "", map[string]any{"userId": studentID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "signature_required", decode(t, w)["error"])
}

func TestRealtimeWithoutHub(t *testing.T) {
	f := newFixture(t, Deps{})
	w := f.do(t, http.MethodGet, "/api/ws", "s-student", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type stubQueue struct {
	tasks    []string
	payloads []any
}

func (q *stubQueue) Enqueue(_ context.Context, taskType string, payload any) (string, error) {
	q.tasks = append(q.tasks, taskType)
	q.payloads = append(q.payloads, payload)
	return "1-0", nil
}

func TestRunJob(t *testing.T) {
	q := &stubQueue{}
	f := newFixture(t, Deps{Tasks: q})

	w := f.do(t, http.MethodPost, "/api/jobs/overdue_sweep", "s-student", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/jobs/overdue_sweep", "s-admin", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1-0", decode(t, w)["messageId"])

	w = f.do(t, http.MethodPost, "/api/jobs/notify", "s-admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/notifications", "s-admin", map[string]any{
		"receiverId": studentID,
		"event":      "book_overdue",
		"vars":       map[string]string{"bookTitle": "Calculus"},
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"overdue_sweep", "notify"}, q.tasks)
}
