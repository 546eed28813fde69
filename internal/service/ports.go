package service

import (
	"context"
	"time"

	"wiselib/api/internal/models"
	"wiselib/api/internal/remote"
	"wiselib/api/internal/repository"
	"wiselib/api/internal/storage"
)

type userStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByLogin(ctx context.Context, login string) (models.User, error)
	UpdateProfile(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	SetTwoFactor(ctx context.Context, id string, enabled bool, key string) error
	SetQRCode(ctx context.Context, id string, data string, generatedAt time.Time) error
	SetQRActive(ctx context.Context, id string, active bool) error
	SetActive(ctx context.Context, id string, active bool) error
	SetAvatar(ctx context.Context, id string, key string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter repository.UserFilter) ([]models.User, error)
}

type sessionStore interface {
	Upsert(ctx context.Context, session models.Session) error
	Trim(ctx context.Context, userID string, keepLatest int) error
	FindByRefreshHash(ctx context.Context, userID string, refreshHash []byte) (models.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByDevice(ctx context.Context, userID string, deviceID string) error
	DeleteByUser(ctx context.Context, userID string, exceptSessionID string) error
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
}

type loginStore interface {
	Create(ctx context.Context, rec models.LoginRecord) error
	List(ctx context.Context, userID string, limit int) ([]models.LoginRecord, error)
}

type bookStore interface {
	Create(ctx context.Context, book models.Book) error
	GetByID(ctx context.Context, id string) (models.Book, error)
	Update(ctx context.Context, book models.Book) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter repository.BookFilter) ([]models.Book, error)
	Totals(ctx context.Context) (repository.CatalogueTotals, error)
}

type borrowStore interface {
	Borrow(ctx context.Context, rec models.BorrowRecord, allow func(active int) error) (models.BorrowRecord, error)
	Return(ctx context.Context, id string, at time.Time) (models.BorrowRecord, bool, error)
	GetByID(ctx context.Context, id string) (models.BorrowRecord, error)
	List(ctx context.Context, filter repository.BorrowFilter) ([]models.BorrowRecord, error)
	MarkOverdue(ctx context.Context, ids []string) error
	Counts(ctx context.Context, dayStart time.Time) (repository.BorrowCounts, error)
}

type reservationStore interface {
	Create(ctx context.Context, res models.Reservation) error
	List(ctx context.Context, bookID string) ([]models.Reservation, error)
	GetByID(ctx context.Context, id string) (models.Reservation, error)
	Delete(ctx context.Context, id string) error
}

type notificationStore interface {
	Create(ctx context.Context, n models.Notification) error
	ListForReceivers(ctx context.Context, receivers []string, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, receivers []string) (int, error)
	MarkRead(ctx context.Context, id string, receivers []string) error
	MarkAllRead(ctx context.Context, receivers []string) (int64, error)
	Delete(ctx context.Context, id string, receivers []string) error
}

type activityStore interface {
	Create(ctx context.Context, a models.Activity) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Activity, error)
}

type librarySessionStore interface {
	LastAction(ctx context.Context, userID string) (int, error)
	FindOpen(ctx context.Context, userID string) (models.LibrarySession, error)
	Create(ctx context.Context, s models.LibrarySession) error
	MarkExited(ctx context.Context, id string, at time.Time) error
	ListInside(ctx context.Context, enteredBefore time.Time) ([]models.LibrarySession, error)
	ListRecent(ctx context.Context, limit int) ([]models.LibrarySession, error)
	CountInside(ctx context.Context) (int, error)
}

type aiLogStore interface {
	Create(ctx context.Context, x models.AIExchange) error
	ListRecent(ctx context.Context, limit int) ([]models.AIExchange, error)
}

type objectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) (storage.Object, error)
	Remove(ctx context.Context, bucket, key string) error
}

// directory mirrors user changes to the optional legacy directory API.
type directory interface {
	SyncUser(ctx context.Context, user models.User) remote.SyncResult
	DeleteUser(ctx context.Context, userID string) remote.SyncResult
	SyncPasswordReset(ctx context.Context, userID string) remote.SyncResult
}

type publisher interface {
	Publish(ctx context.Context, receiver, event string, data any) error
}
