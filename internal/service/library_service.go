package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/envelope"
	"wiselib/api/internal/ids"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

const forgottenAfter = 8 * time.Hour

type LibraryService struct {
	sessions librarySessionStore
	users    userStore
	badges   badgeIssuer
	activity *ActivityService
	notifier *NotificationService
	log      zerolog.Logger
	now      func() time.Time
}

func NewLibraryService(sessions librarySessionStore, users userStore, badges badgeIssuer, activity *ActivityService, notifier *NotificationService, log zerolog.Logger) *LibraryService {
	return &LibraryService{
		sessions: sessions,
		users:    users,
		badges:   badges,
		activity: activity,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// KioskInput identifies a visitor by a scanned badge or a typed id.
type KioskInput struct {
	Payload string
	UserID  string
}

func (s *LibraryService) resolve(ctx context.Context, in KioskInput) (models.User, models.LoginMethod, error) {
	if strings.TrimSpace(in.Payload) != "" {
		scan, err := s.badges.Verify(ctx, in.Payload)
		if err != nil {
			return models.User{}, "", err
		}
		if scan.Variant != envelope.VariantUser {
			return models.User{}, "", fmt.Errorf("%w: scan a user badge", ErrInvalidInput)
		}
		return scan.User, models.LoginMethodKioskQR, nil
	}

	id := strings.ToUpper(strings.TrimSpace(in.UserID))
	if id == "" {
		return models.User{}, "", fmt.Errorf("%w: badge or user id required", ErrInvalidInput)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, "", err
	}
	if !user.IsActive {
		return models.User{}, "", ErrUserInactive
	}
	return user, models.LoginMethodKioskID, nil
}

// Enter opens a visit. Entries take the next odd action number.
func (s *LibraryService) Enter(ctx context.Context, in KioskInput) (models.LibrarySession, error) {
	user, method, err := s.resolve(ctx, in)
	if err != nil {
		return models.LibrarySession{}, err
	}
	return s.enter(ctx, user, method)
}

func (s *LibraryService) enter(ctx context.Context, user models.User, method models.LoginMethod) (models.LibrarySession, error) {
	open, err := s.sessions.FindOpen(ctx, user.ID)
	if err == nil {
		return open, ErrAlreadyInside
	}
	if !errors.Is(err, repository.ErrLibrarySessionNotFound) {
		return models.LibrarySession{}, err
	}

	last, err := s.sessions.LastAction(ctx, user.ID)
	if err != nil {
		return models.LibrarySession{}, err
	}
	action := last + 1
	if action%2 == 0 {
		action++
	}

	session := models.LibrarySession{
		ID:          ids.New(),
		UserID:      user.ID,
		UserType:    user.Type,
		FullName:    user.FullName,
		Method:      method,
		Status:      models.LibraryInside,
		ActionCount: action,
		EnteredAt:   s.now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return models.LibrarySession{}, err
	}

	s.activity.Record(ctx, user.ID, models.ActivityLibraryEntry, string(method))
	s.notifier.Inform(ctx, NotifyInput{
		Receiver: models.AdminReceiver,
		Event:    EventLibraryEntry,
		Vars:     map[string]string{"userId": user.ID, "method": methodLabel(method)},
	})
	s.log.Info().Str("user_id", user.ID).Str("method", string(method)).Int("action", action).Msg("library entry")
	return session, nil
}

// Exit closes the open visit. The exit takes the following even number.
func (s *LibraryService) Exit(ctx context.Context, in KioskInput) (models.LibrarySession, error) {
	user, _, err := s.resolve(ctx, in)
	if err != nil {
		return models.LibrarySession{}, err
	}
	return s.exit(ctx, user)
}

func (s *LibraryService) exit(ctx context.Context, user models.User) (models.LibrarySession, error) {
	open, err := s.sessions.FindOpen(ctx, user.ID)
	if errors.Is(err, repository.ErrLibrarySessionNotFound) {
		return models.LibrarySession{}, ErrNotInside
	}
	if err != nil {
		return models.LibrarySession{}, err
	}

	at := s.now()
	if err := s.sessions.MarkExited(ctx, open.ID, at); err != nil {
		return models.LibrarySession{}, err
	}
	open.Status = models.LibraryLoggedOut
	open.ExitedAt = &at
	open.ActionCount++

	s.activity.Record(ctx, user.ID, models.ActivityLibraryExit, "")
	s.notifier.Inform(ctx, NotifyInput{
		Receiver: models.AdminReceiver,
		Event:    EventLibraryExit,
		Vars:     map[string]string{"userId": user.ID},
	})
	s.log.Info().Str("user_id", user.ID).Dur("stayed", at.Sub(open.EnteredAt)).Msg("library exit")
	return open, nil
}

// Scan enters visitors who are outside and lets out those inside.
func (s *LibraryService) Scan(ctx context.Context, in KioskInput) (models.LibrarySession, bool, error) {
	user, method, err := s.resolve(ctx, in)
	if err != nil {
		return models.LibrarySession{}, false, err
	}
	session, err := s.enter(ctx, user, method)
	if errors.Is(err, ErrAlreadyInside) {
		session, err = s.exit(ctx, user)
		return session, false, err
	}
	return session, err == nil, err
}

func (s *LibraryService) Inside(ctx context.Context) ([]models.LibrarySession, error) {
	return s.sessions.ListInside(ctx, time.Time{})
}

func (s *LibraryService) Recent(ctx context.Context, limit int) ([]models.LibrarySession, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.sessions.ListRecent(ctx, limit)
}

// SweepForgotten tells the admins about visitors inside for more than eight
// hours. Each visit is reported once.
func (s *LibraryService) SweepForgotten(ctx context.Context) (int, error) {
	stale, err := s.sessions.ListInside(ctx, s.now().Add(-forgottenAfter))
	if err != nil {
		return 0, err
	}
	reported := 0
	for _, sess := range stale {
		_, sent, err := s.notifier.Notify(ctx, NotifyInput{
			Receiver:       models.AdminReceiver,
			Event:          EventForgottenLogout,
			ActionRequired: true,
			DedupKey:       "forgotten:" + sess.ID,
			DedupTTL:       48 * time.Hour,
			Vars: map[string]string{
				"userId":    sess.UserID,
				"fullName":  sess.FullName,
				"enteredAt": sess.EnteredAt.Format("Jan 2 3:04 PM"),
			},
			Meta: map[string]string{"sessionId": sess.ID, "userId": sess.UserID},
		})
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("forgotten logout notice failed")
			continue
		}
		if sent {
			reported++
		}
	}
	return reported, nil
}

func methodLabel(m models.LoginMethod) string {
	switch m {
	case models.LoginMethodKioskQR, models.LoginMethodQR, models.LoginMethodQRTwoFA:
		return "QR code"
	default:
		return "manual login"
	}
}
