package rabbitmq

import (
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// AnalyticsExchange обменник событий аналитики.
const AnalyticsExchange = "analytics"

// QueueConfig очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	Name       string
	RoutingKey string
	// MessageTTL ограничивает время жизни непрочитанного сообщения, ноль без ограничения.
	MessageTTL time.Duration
}

func (q QueueConfig) args() amqp.Table {
	if q.MessageTTL <= 0 {
		return nil
	}
	return amqp.Table{"x-message-ttl": q.MessageTTL.Milliseconds()}
}

// Topology обменник, его очереди и предвыборка канала.
type Topology struct {
	Exchange string
	Kind     string
	Prefetch int
	Queues   []QueueConfig
}

// AnalyticsTopology топология, общая для издателя и analytics-sink.
func AnalyticsTopology() Topology {
	return Topology{
		Exchange: AnalyticsExchange,
		Kind:     amqp.ExchangeDirect,
		Prefetch: 10,
		Queues: []QueueConfig{
			{Name: "analytics.events", RoutingKey: "event", MessageTTL: 24 * time.Hour},
		},
	}
}

// Declare открывает канал и объявляет на нём топологию. Объявление идемпотентно,
// поэтому издатель и потребитель вызывают его независимо.
func (t Topology) Declare(conn *amqp.Connection) (*amqp.Channel, error) {
	const op = "rabbitmq.Topology.Declare"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := t.declare(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ch, nil
}

func (t Topology) declare(ch *amqp.Channel) error {
	if t.Prefetch > 0 {
		if err := ch.Qos(t.Prefetch, 0, false); err != nil {
			return fmt.Errorf("qos: %w", err)
		}
	}
	kind := t.Kind
	if kind == "" {
		kind = amqp.ExchangeDirect
	}
	if err := ch.ExchangeDeclare(t.Exchange, kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange %s: %w", t.Exchange, err)
	}
	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, q.args()); err != nil {
			return fmt.Errorf("queue %s: %w", q.Name, err)
		}
		if err := ch.QueueBind(q.Name, q.RoutingKey, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", q.Name, q.RoutingKey, err)
		}
	}
	return nil
}

// RoutingKey ключ первой очереди, по нему публикуются события.
func (t Topology) RoutingKey() string {
	if len(t.Queues) == 0 {
		return ""
	}
	return t.Queues[0].RoutingKey
}
