// Package rabbitmq содержит подключение к брокеру, объявление топологии,
// публикацию и потребление JSON-сообщений.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/retry"
)

// Dial подключается к брокеру, повторяя попытки по policy.
// Отмена ctx прерывает ожидание между попытками.
func Dial(ctx context.Context, url string, policy retry.Policy) (*amqp.Connection, error) {
	const op = "rabbitmq.Dial"
	var conn *amqp.Connection
	err := retry.Do(ctx, policy, func(error) bool { return true }, func(context.Context) error {
		c, err := amqp.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return conn, nil
}

// RetryPolicy экспоненциальная политика подключения: attempts попыток, начиная с delay.
func RetryPolicy(attempts int, delay time.Duration) retry.Policy {
	return retry.Policy{
		Attempts:  attempts,
		BaseDelay: delay,
		MaxDelay:  30 * time.Second,
		Factor:    2,
	}
}
