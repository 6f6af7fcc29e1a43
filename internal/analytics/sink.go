package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// EventSaver сохраняет событие.
type EventSaver interface {
	SaveEvent(ctx context.Context, e models.Event) error
}

// Sink обработчик сообщений очереди аналитики.
type Sink struct {
	log   *slog.Logger
	saver EventSaver
}

func NewSink(log *slog.Logger, saver EventSaver) *Sink {
	return &Sink{log: log, saver: saver}
}

// Handle декодирует событие и сохраняет его.
func (s *Sink) Handle(ctx context.Context, body []byte) error {
	const op = "analytics.Sink.Handle"
	var e models.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if e.ID == "" || e.Name == "" {
		return fmt.Errorf("%s: event id and name are required", op)
	}
	if err := s.saver.SaveEvent(ctx, e); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.AnalyticsEventsTotal.WithLabelValues("stored").Inc()
	s.log.Debug("analytics event stored", slog.String("event", e.Name), slog.String("id", e.ID))
	return nil
}
