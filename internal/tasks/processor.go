package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wiselib/api/internal/metrics"
	"wiselib/api/internal/models"
	"wiselib/api/internal/service"
)

const (
	TypeOverdueSweep     = "overdue_sweep"
	TypeForgottenLogouts = "forgotten_logouts"
	TypeStatsRefresh     = "stats_refresh"
	TypeNotify           = "notify"
)

var ErrUnknownTask = errors.New("unknown task type")

// Known reports whether t names a task the processor runs.
func Known(t string) bool {
	switch t {
	case TypeOverdueSweep, TypeForgottenLogouts, TypeStatsRefresh, TypeNotify:
		return true
	}
	return false
}

type NotifyPayload struct {
	Receiver       string            `json:"receiver"`
	Event          string            `json:"event"`
	Vars           map[string]string `json:"vars,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
	ActionRequired bool              `json:"actionRequired,omitempty"`
	DedupKey       string            `json:"dedupKey,omitempty"`
}

type overdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

type forgottenSweeper interface {
	SweepForgotten(ctx context.Context) (int, error)
}

type statsRefresher interface {
	Refresh(ctx context.Context, broadcast bool) (service.Stats, error)
}

type notifier interface {
	Notify(ctx context.Context, in service.NotifyInput) (models.Notification, bool, error)
}

type Processor struct {
	borrows  overdueSweeper
	library  forgottenSweeper
	stats    statsRefresher
	notifier notifier
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

func NewProcessor(borrows overdueSweeper, library forgottenSweeper, stats statsRefresher, notifier notifier, m *metrics.Collector, logger zerolog.Logger) *Processor {
	return &Processor{
		borrows:  borrows,
		library:  library,
		stats:    stats,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType, _ := msg.Values["type"].(string)
	err := p.run(ctx, taskType, msg)
	if errors.Is(err, ErrUnknownTask) {
		// unknown tasks are acknowledged so they do not loop through claims
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
	p.metrics.RecordTask(taskType, err == nil)
	return err
}

func (p *Processor) run(ctx context.Context, taskType string, msg redis.XMessage) error {
	switch taskType {
	case TypeOverdueSweep:
		n, err := p.borrows.SweepOverdue(ctx)
		if err != nil {
			return fmt.Errorf("overdue sweep: %w", err)
		}
		p.logger.Info().Int("overdue", n).Msg("overdue sweep done")
		return nil
	case TypeForgottenLogouts:
		n, err := p.library.SweepForgotten(ctx)
		if err != nil {
			return fmt.Errorf("forgotten logout sweep: %w", err)
		}
		p.logger.Info().Int("reminders", n).Msg("forgotten logout sweep done")
		return nil
	case TypeStatsRefresh:
		stats, err := p.stats.Refresh(ctx, true)
		if err != nil {
			return fmt.Errorf("stats refresh: %w", err)
		}
		if !stats.Consistent {
			p.logger.Warn().Int("available", stats.AvailableCopies).Int("copies", stats.TotalCopies).Msg("catalogue totals inconsistent")
		}
		return nil
	case TypeNotify:
		var payload NotifyPayload
		if err := decodePayload(msg.Values, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, sent, err := p.notifier.Notify(ctx, service.NotifyInput{
			Receiver:       payload.Receiver,
			Event:          service.Event(payload.Event),
			Vars:           payload.Vars,
			Meta:           payload.Meta,
			ActionRequired: payload.ActionRequired,
			DedupKey:       payload.DedupKey,
		})
		if err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		p.logger.Debug().Str("receiver", payload.Receiver).Bool("sent", sent).Msg("notify task done")
		return nil
	default:
		return ErrUnknownTask
	}
}

func decodePayload(values map[string]any, out any) error {
	raw, ok := values["payload"].(string)
	if !ok || raw == "" {
		return errors.New("missing payload")
	}
	return json.Unmarshal([]byte(raw), out)
}
