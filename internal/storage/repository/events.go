package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// SaveEvent сохраняет событие аналитики. Повторная доставка того же события игнорируется.
func (s *Storage) SaveEvent(ctx context.Context, e models.Event) error {
	const op = "storage.SaveEvent"

	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var userUID any
	if e.UserUID != "" {
		userUID = e.UserUID
	}
	query := `INSERT INTO analytics_events (id, name, user_uid, properties, occurred_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (id) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, e.ID, e.Name, userUID, string(raw), e.OccurredAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountEvents возвращает число событий с указанным именем.
func (s *Storage) CountEvents(ctx context.Context, name string) (int, error) {
	const op = "storage.CountEvents"

	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_events WHERE name = $1`, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
