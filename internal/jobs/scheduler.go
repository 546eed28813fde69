package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"wiselib/api/internal/tasks"
)

type enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

// Job is a periodic task handed to the worker.
type Job struct {
	Spec string
	Task string
}

// DefaultJobs run the overdue sweep hourly, the forgotten logout check every
// fifteen minutes and the dashboard broadcast every minute.
var DefaultJobs = []Job{
	{Spec: "0 0 * * * *", Task: tasks.TypeOverdueSweep},
	{Spec: "0 */15 * * * *", Task: tasks.TypeForgottenLogouts},
	{Spec: "0 * * * * *", Task: tasks.TypeStatsRefresh},
}

type Scheduler struct {
	cron  *cron.Cron
	queue enqueuer
	jobs  []Job
	log   zerolog.Logger
}

func NewScheduler(queue enqueuer, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	return &Scheduler{
		cron:  c,
		queue: queue,
		jobs:  DefaultJobs,
		log:   log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	for _, job := range s.jobs {
		task := job.Task
		if _, err := s.cron.AddFunc(job.Spec, func() { s.enqueue(task) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
	return nil
}

// Stop halts the scheduler and waits up to five seconds for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueue(task string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := s.queue.Enqueue(ctx, task, nil)
	if err != nil {
		s.log.Error().Err(err).Str("task", task).Msg("enqueue task failed")
		return
	}
	s.log.Debug().Str("task", task).Str("message_id", id).Msg("task enqueued")
}
