package envelope

import (
	"context"
	"errors"
	"time"

	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

// RecordStore resolves user records by id. Implementations return
// repository.ErrUserNotFound for unknown ids.
type RecordStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

type Builder struct {
	store    RecordStore
	settings Settings
	now      func() time.Time
}

func NewBuilder(store RecordStore, settings Settings) *Builder {
	return &Builder{store: store, settings: settings, now: time.Now}
}

// Build issues a fresh envelope for an active user. Earlier envelopes for the
// same user stay valid.
func (b *Builder) Build(ctx context.Context, userID string) (UserEnvelope, error) {
	user, err := b.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return UserEnvelope{}, fail(ErrRecordNotFound)
		}
		return UserEnvelope{}, err
	}
	if !user.IsActive {
		return UserEnvelope{}, fail(ErrRecordInactive)
	}
	return b.ForUser(user), nil
}

// ForUser builds an envelope from an already loaded record.
func (b *Builder) ForUser(user models.User) UserEnvelope {
	ts := b.now().UnixMilli()
	env := UserEnvelope{
		FullName:    user.FullName,
		UserID:      user.ID,
		UserType:    user.Type,
		SystemID:    b.settings.SystemID,
		SystemTag:   b.settings.TagFor(user.Type),
		Timestamp:   ts,
		BearerToken: BearerToken(user.ID, ts),
		Role:        RoleFor(user.Type),
		Email:       user.Email,
	}
	if user.Type == models.UserTypeAdmin {
		env.Department = user.Department
	} else {
		env.Course = user.Course
		env.Year = user.YearLevel
		env.Section = user.Section
	}
	return env
}
