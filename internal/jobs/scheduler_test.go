package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiselib/api/internal/tasks"
)

type fakeQueue struct {
	tasks []string
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, taskType string, _ any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.tasks = append(f.tasks, taskType)
	return "1-0", nil
}

func TestDefaultJobSpecsParse(t *testing.T) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, job := range DefaultJobs {
		_, err := parser.Parse(job.Spec)
		assert.NoError(t, err, job.Spec)
		assert.True(t, tasks.Known(job.Task), job.Task)
	}
}

func TestStartRegistersJobs(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, time.UTC, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), len(DefaultJobs))
}

func TestStartWithoutQueue(t *testing.T) {
	s := NewScheduler(nil, nil, zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Empty(t, s.cron.Entries())
}

func TestEnqueue(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, time.UTC, zerolog.Nop())
	s.enqueue(tasks.TypeOverdueSweep)
	assert.Equal(t, []string{tasks.TypeOverdueSweep}, q.tasks)

	q.err = errors.New("redis down")
	s.enqueue(tasks.TypeStatsRefresh)
	assert.Len(t, q.tasks, 1)
}
