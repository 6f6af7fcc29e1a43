package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/services/reconcile"
)

type countingJob struct {
	calls atomic.Int32
	err   error
}

func (j *countingJob) Run(context.Context) (reconcile.Result, error) {
	j.calls.Add(1)
	return reconcile.Result{Checked: 1}, j.err
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(newNoopLogger(), &countingJob{}, "every now and then")

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestScheduler_RunsJobOnSchedule(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(newNoopLogger(), job, "@every 1s")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool { return job.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	<-s.Stop().Done()
}

func TestScheduler_RunJob(t *testing.T) {
	t.Run("error is logged, not propagated", func(t *testing.T) {
		job := &countingJob{err: errors.New("stripe down")}
		s := NewScheduler(newNoopLogger(), job, "@every 1h")

		s.runJob(context.Background())

		assert.Equal(t, int32(1), job.calls.Load())
	})

	t.Run("cancelled context skips the pass", func(t *testing.T) {
		job := &countingJob{}
		s := NewScheduler(newNoopLogger(), job, "@every 1h")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s.runJob(ctx)

		assert.Equal(t, int32(0), job.calls.Load())
	})
}
