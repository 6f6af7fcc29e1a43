// Package retry реализует ограниченный повтор операций с экспоненциальной задержкой.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

// Policy описывает количество попыток и рост задержки между ними.
type Policy struct {
	Attempts  int           // Общее число попыток, включая первую
	BaseDelay time.Duration // Задержка перед второй попыткой
	MaxDelay  time.Duration // Верхняя граница задержки
	Factor    float64       // Множитель задержки
}

// DefaultPolicy три попытки: 250ms, 500ms.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Factor:    2,
	}
}

// Delay вычисляет задержку после неудачной попытки attempt (с нуля).
func (p Policy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}
	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// wait подменяется в тестах.
var wait = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do выполняет fn, повторяя её, пока retryable(err) истинно и попытки не исчерпаны.
// Возвращает последнюю ошибку fn.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	const op = "retry.Do"
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := range attempts {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts-1 || !retryable(err) {
			return err
		}
		if waitErr := wait(ctx, p.Delay(attempt)); waitErr != nil {
			return fmt.Errorf("%s: %w", op, errors.Join(err, waitErr))
		}
	}
	return err
}

var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"broken pipe",
	"timeout",
	"timed out",
	"econnreset",
	"unexpected eof",
}

// IsTransient сообщает, похожа ли ошибка на сбой соединения, таймаут или сброс.
// Отказы в аутентификации сюда не попадают.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
