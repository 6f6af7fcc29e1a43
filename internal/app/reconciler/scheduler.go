package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/services/reconcile"
)

// Job один проход сверки.
type Job interface {
	Run(ctx context.Context) (reconcile.Result, error)
}

// Scheduler запускает сверку по cron-расписанию. Проход, не успевший
// завершиться к следующему срабатыванию, не дублируется.
type Scheduler struct {
	cron     *cron.Cron
	job      Job
	logger   *slog.Logger
	schedule string
}

// NewScheduler создаёт планировщик.
func NewScheduler(logger *slog.Logger, job Job, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:     c,
		job:      job,
		logger:   logger,
		schedule: schedule,
	}
}

// Start регистрирует задачу и запускает cron. ctx передаётся в каждый проход.
func (s *Scheduler) Start(ctx context.Context) error {
	const op = "reconciler.Start"
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runJob(ctx) }); err != nil {
		return fmt.Errorf("%s: invalid schedule %q: %w", op, s.schedule, err)
	}
	s.logger.Info("scheduled reconciliation job", slog.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop останавливает cron. Контекст завершается, когда текущий проход закончен.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.job.Run(ctx); err != nil {
		s.logger.Error("reconciliation failed", sl.Err(err))
	}
}
