package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

const defaultWorkers = 10

// Handler обрабатывает тело одного сообщения.
type Handler func(ctx context.Context, body []byte) error

// ConsumerOptions параметры потребителя.
type ConsumerOptions struct {
	Queue   string
	Tag     string
	Workers int
	// Requeue возвращает в очередь сообщение, обработка которого упала.
	// Повторно доставленное сообщение второй раз не возвращается.
	Requeue bool
}

// Consumer пул обработчиков одной очереди.
type Consumer struct {
	wg sync.WaitGroup
}

// Consume подписывается на очередь и запускает Workers обработчиков.
// Обработчики завершаются при отмене ctx или закрытии канала.
func Consume(ctx context.Context, log *slog.Logger, ch *amqp.Channel, opts ConsumerOptions, handler Handler) (*Consumer, error) {
	const op = "rabbitmq.Consume"

	deliveries, err := ch.Consume(opts.Queue, opts.Tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	log = log.With(slog.String("queue", opts.Queue))

	c := &Consumer{}
	c.wg.Add(workers)
	for range workers {
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					settle(ctx, log, d, opts.Requeue, handler)
				}
			}
		}()
	}
	return c, nil
}

// Wait блокируется, пока не завершатся все обработчики.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func settle(ctx context.Context, log *slog.Logger, d amqp.Delivery, requeue bool, handler Handler) {
	if err := handler(ctx, d.Body); err != nil {
		requeue = requeue && !d.Redelivered
		log.Error("failed to handle message",
			slog.String("message_id", d.MessageId),
			slog.Bool("requeue", requeue),
			sl.Err(err))
		if err := d.Nack(false, requeue); err != nil {
			log.Error("failed to nack message", sl.Err(err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("failed to ack message", sl.Err(err))
	}
}
