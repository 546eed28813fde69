package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"wiselib/api/internal/cache"
	"wiselib/api/internal/ids"
	"wiselib/api/internal/metrics"
	"wiselib/api/internal/models"
)

const (
	notificationEvent  = "notification"
	defaultListLimit   = 50
	defaultDedupWindow = 24 * time.Hour
)

type NotifyInput struct {
	Receiver       string
	Event          Event
	Vars           map[string]string
	Meta           map[string]string
	ActionRequired bool
	// DedupKey suppresses repeats of the same notification within DedupTTL.
	DedupKey string
	DedupTTL time.Duration
}

type NotificationPush struct {
	ID             string            `json:"id"`
	ReceiverID     string            `json:"receiverId"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	ActionRequired bool              `json:"actionRequired"`
	Meta           map[string]string `json:"meta,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type NotificationService struct {
	repo      notificationStore
	cache     *cache.Store
	pub       publisher
	sanitizer *bluemonday.Policy
	metrics   *metrics.Collector
	log       zerolog.Logger
	now       func() time.Time
	pick      func(n int) int
}

func NewNotificationService(repo notificationStore, store *cache.Store, pub publisher, m *metrics.Collector, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		repo:      repo,
		cache:     store,
		pub:       pub,
		sanitizer: bluemonday.StrictPolicy(),
		metrics:   m,
		log:       log,
		now:       time.Now,
		pick:      rand.Intn,
	}
}

// Notify renders a random template for the event and stores it for the
// receiver. The second result is false when a dedup key suppressed it.
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (models.Notification, bool, error) {
	tpl, ok := templates[in.Event]
	if !ok {
		return models.Notification{}, false, fmt.Errorf("%w: unknown event %q", ErrInvalidInput, in.Event)
	}
	if in.Receiver == "" {
		return models.Notification{}, false, fmt.Errorf("%w: receiver required", ErrInvalidInput)
	}

	if in.DedupKey != "" && s.cache != nil {
		ttl := in.DedupTTL
		if ttl <= 0 {
			ttl = defaultDedupWindow
		}
		first, err := s.cache.Claim(ctx, "notify:"+in.Receiver+":"+in.DedupKey, ttl)
		if err != nil {
			s.log.Warn().Err(err).Str("dedup_key", in.DedupKey).Msg("notification dedup unavailable")
		} else if !first {
			s.metrics.RecordNotification(string(tpl.kind), false)
			return models.Notification{}, false, nil
		}
	}

	vars := make(map[string]string, len(in.Vars)+1)
	for k, v := range in.Vars {
		vars[k] = s.sanitizer.Sanitize(v)
	}
	if _, ok := vars["timestamp"]; !ok {
		vars["timestamp"] = s.now().Format("01/02/2006, 03:04 PM")
	}

	n := models.Notification{
		ID:             ids.New(),
		ReceiverID:     in.Receiver,
		Title:          tpl.title,
		Message:        fill(tpl.messages[s.pick(len(tpl.messages))], vars),
		Type:           tpl.kind,
		Status:         models.NotificationUnread,
		ActionRequired: in.ActionRequired,
		Meta:           in.Meta,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return models.Notification{}, false, fmt.Errorf("store notification: %w", err)
	}
	s.metrics.RecordNotification(string(n.Type), true)

	if s.pub != nil {
		if err := s.pub.Publish(ctx, n.ReceiverID, notificationEvent, Push(n)); err != nil {
			s.log.Warn().Err(err).Str("receiver", n.ReceiverID).Msg("push notification failed")
		}
	}
	return n, true, nil
}

// NotifyAdmins addresses the shared admin inbox.
func (s *NotificationService) NotifyAdmins(ctx context.Context, in NotifyInput) (models.Notification, bool, error) {
	in.Receiver = models.AdminReceiver
	return s.Notify(ctx, in)
}

// Inform is Notify for callers that only log failures.
func (s *NotificationService) Inform(ctx context.Context, in NotifyInput) {
	if s == nil {
		return
	}
	if _, _, err := s.Notify(ctx, in); err != nil {
		s.log.Warn().Err(err).Str("event", string(in.Event)).Str("receiver", in.Receiver).Msg("notification not sent")
	}
}

func receiversFor(user models.User) []string {
	if user.Type == models.UserTypeAdmin {
		return []string{user.ID, models.AdminReceiver}
	}
	return []string{user.ID}
}

func (s *NotificationService) List(ctx context.Context, user models.User, limit int) ([]models.Notification, int, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	receivers := receiversFor(user)
	items, err := s.repo.ListForReceivers(ctx, receivers, limit)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.repo.CountUnread(ctx, receivers)
	if err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, user models.User, id string) error {
	return s.repo.MarkRead(ctx, id, receiversFor(user))
}

func (s *NotificationService) MarkAllRead(ctx context.Context, user models.User) (int64, error) {
	return s.repo.MarkAllRead(ctx, receiversFor(user))
}

func (s *NotificationService) Remove(ctx context.Context, user models.User, id string) error {
	return s.repo.Delete(ctx, id, receiversFor(user))
}

func Push(n models.Notification) NotificationPush {
	return NotificationPush{
		ID:             n.ID,
		ReceiverID:     n.ReceiverID,
		Title:          n.Title,
		Message:        n.Message,
		Type:           string(n.Type),
		Status:         string(n.Status),
		ActionRequired: n.ActionRequired,
		Meta:           n.Meta,
		CreatedAt:      n.CreatedAt,
	}
}
