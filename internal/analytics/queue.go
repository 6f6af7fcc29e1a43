// Package analytics доставляет события аналитики в брокер по принципу best effort.
// Потеря события никогда не влияет на ответ пользователю.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Publisher отправляет сообщение в брокер.
type Publisher interface {
	Publish(ctx context.Context, message any) error
}

// Queue ограниченная очередь событий с одним воркером-публикатором.
type Queue struct {
	log     *slog.Logger
	pub     Publisher
	events  chan models.Event
	timeout time.Duration
	now     func() time.Time
}

// New создаёт очередь на size событий.
func New(log *slog.Logger, pub Publisher, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		log:     log,
		pub:     pub,
		events:  make(chan models.Event, size),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Track ставит событие в очередь. Не блокирует: при переполнении событие отбрасывается.
func (q *Queue) Track(name, userUID string, props map[string]any) {
	e := models.Event{
		ID:         uuid.New().String(),
		Name:       name,
		UserUID:    userUID,
		Properties: props,
		OccurredAt: q.now().UTC(),
	}
	select {
	case q.events <- e:
	default:
		metrics.AnalyticsEventsTotal.WithLabelValues("dropped_full").Inc()
		q.log.Debug("analytics queue is full, event dropped", slog.String("event", name))
	}
}

// Run публикует события до отмены контекста.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-q.events:
			q.publish(ctx, e)
		}
	}
}

func (q *Queue) publish(ctx context.Context, e models.Event) {
	pubCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := q.pub.Publish(pubCtx, e); err != nil {
		metrics.AnalyticsEventsTotal.WithLabelValues("dropped_error").Inc()
		q.log.Warn("failed to publish analytics event", slog.String("event", e.Name), sl.Err(err))
		return
	}
	metrics.AnalyticsEventsTotal.WithLabelValues("published").Inc()
}

// Discard трекер, который ничего не делает.
type Discard struct{}

func (Discard) Track(string, string, map[string]any) {}
