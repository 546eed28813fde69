package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/ids"
	"wiselib/api/internal/models"
)

type ActivityService struct {
	repo activityStore
	log  zerolog.Logger
	now  func() time.Time
}

func NewActivityService(repo activityStore, log zerolog.Logger) *ActivityService {
	return &ActivityService{repo: repo, log: log, now: time.Now}
}

// Record appends to the user's activity log. Failures are logged only.
func (s *ActivityService) Record(ctx context.Context, userID string, action models.ActivityAction, details string) {
	if s == nil {
		return
	}
	err := s.repo.Create(ctx, models.Activity{
		ID:        ids.New(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("action", string(action)).Msg("record activity failed")
	}
}

func (s *ActivityService) List(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
