package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const subscriptionColumns = `id, user_uid, stripe_customer_id, stripe_subscription_id, status, price_id,
	current_period_start, current_period_end, cancel_at_period_end, state_at, updated_at`

// UpsertSubscription сохраняет проекцию подписки, ключ stripe_subscription_id.
// Состояние старше уже сохранённого (по state_at) не применяется, тогда возвращается false.
// Пустой StateAt означает состояние, прочитанное у провайдера сейчас.
func (s *Storage) UpsertSubscription(ctx context.Context, rec models.SubscriptionRecord) (bool, error) {
	const op = "storage.UpsertSubscription"

	query := `INSERT INTO subscriptions (user_uid, stripe_customer_id, stripe_subscription_id, status,
			      price_id, current_period_start, current_period_end, cancel_at_period_end, state_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), NOW())
			  ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			      status = EXCLUDED.status,
			      price_id = EXCLUDED.price_id,
			      current_period_start = EXCLUDED.current_period_start,
			      current_period_end = EXCLUDED.current_period_end,
			      cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			      state_at = EXCLUDED.state_at,
			      updated_at = NOW()
			  WHERE subscriptions.state_at <= EXCLUDED.state_at`
	res, err := s.DB.ExecContext(ctx, query,
		rec.UserUID, rec.StripeCustomerID, rec.StripeSubscriptionID, rec.Status, rec.PriceID,
		nullTime(rec.CurrentPeriodStart), nullTime(rec.CurrentPeriodEnd), rec.CancelAtPeriodEnd,
		nullTime(rec.StateAt))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// HasSubscription сообщает, есть ли у пользователя проекция подписки провайдера.
func (s *Storage) HasSubscription(ctx context.Context, userUID string) (bool, error) {
	const op = "storage.HasSubscription"

	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
			      SELECT 1 FROM subscriptions WHERE user_uid = $1
			  )`, userUID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// UpdateSubscriptionStatus меняет статус проекции. Возвращает false, если записи нет.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) (bool, error) {
	const op = "storage.UpdateSubscriptionStatus"

	res, err := s.DB.ExecContext(ctx, `UPDATE subscriptions
			  SET status = $1, state_at = NOW(), updated_at = NOW()
			  WHERE stripe_subscription_id = $2`, status, stripeSubscriptionID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// FindUserUIDByCustomer возвращает владельца клиента платёжного провайдера.
func (s *Storage) FindUserUIDByCustomer(ctx context.Context, stripeCustomerID string) (string, bool, error) {
	const op = "storage.FindUserUIDByCustomer"

	var uid string
	err := s.DB.QueryRowContext(ctx, `SELECT user_uid
			  FROM subscriptions
			  WHERE stripe_customer_id = $1
			  ORDER BY updated_at DESC
			  LIMIT 1`, stripeCustomerID).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return uid, true, nil
}

// ClaimLapsedSubscriptions возвращает до limit действующих по статусу подписок,
// у которых период закончился раньше now, и отмечает попытку сверки.
// Первыми идут записи, которые дольше всех не сверялись, поэтому
// постоянно падающие записи не загораживают остальные.
func (s *Storage) ClaimLapsedSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.SubscriptionRecord, error) {
	const op = "storage.ClaimLapsedSubscriptions"

	query := `UPDATE subscriptions
			  SET reconcile_attempted_at = NOW()
			  WHERE id IN (
			      SELECT id FROM subscriptions
			      WHERE status = $1 AND current_period_end < $2
			      ORDER BY reconcile_attempted_at NULLS FIRST, current_period_end
			      LIMIT $3
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING ` + subscriptionColumns
	rows, err := s.DB.QueryContext(ctx, query, models.SubscriptionStatusActive, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.SubscriptionRecord
	for rows.Next() {
		rec, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetSubscription возвращает проекцию по идентификатору подписки провайдера.
func (s *Storage) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*models.SubscriptionRecord, error) {
	const op = "storage.GetSubscription"

	row := s.DB.QueryRowContext(ctx, `SELECT `+subscriptionColumns+`
			  FROM subscriptions
			  WHERE stripe_subscription_id = $1`, stripeSubscriptionID)
	rec, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*models.SubscriptionRecord, error) {
	var rec models.SubscriptionRecord
	var periodStart, periodEnd sql.NullTime
	if err := row.Scan(&rec.ID, &rec.UserUID, &rec.StripeCustomerID, &rec.StripeSubscriptionID,
		&rec.Status, &rec.PriceID, &periodStart, &periodEnd, &rec.CancelAtPeriodEnd, &rec.StateAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if periodStart.Valid {
		rec.CurrentPeriodStart = periodStart.Time
	}
	if periodEnd.Valid {
		rec.CurrentPeriodEnd = periodEnd.Time
	}
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
