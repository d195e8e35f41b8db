package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeAgent Exchange = "egress.agent"
	ExchangeDLQ   Exchange = "egress.dlq"
)

const (
	QueueAgentEvents Queue = "agent.events"
	QueueDLQEvents   Queue = "dlq.agent.events"
)

const (
	RoutingKeyEvents    RoutingKey = "events"
	RoutingKeyDLQEvents RoutingKey = "agent.events"
)

// Binding описывает привязку очереди к обменнику.
type Binding struct {
	Queue      Queue
	RoutingKey RoutingKey
	Exchange   Exchange
}

// Topology — exchanges, queues и bindings, нужные агенту.
type Topology struct {
	Exchanges []Exchange
	Queues    map[Queue]amqp.Table
	Bindings  []Binding
}

// AgentTopology возвращает топологию очереди событий агента.
// Необработанные события уходят в DLQ.
func AgentTopology() Topology {
	return Topology{
		Exchanges: []Exchange{ExchangeAgent, ExchangeDLQ},
		Queues: map[Queue]amqp.Table{
			QueueAgentEvents: {
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
			},
			QueueDLQEvents: nil,
		},
		Bindings: []Binding{
			{QueueAgentEvents, RoutingKeyEvents, ExchangeAgent},
			{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
		},
	}
}

// Declarer — подмножество *amqp.Channel для объявления топологии.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// SetupTopology объявляет AgentTopology на соединении.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return AgentTopology().Declare(ch)
	})
}

// Declare объявляет все элементы топологии. Операции идемпотентны.
func (t Topology) Declare(ch Declarer) error {
	for _, ex := range t.Exchanges {
		if err := ch.ExchangeDeclare(string(ex), "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	for name, args := range t.Queues {
		if _, err := ch.QueueDeclare(string(name), true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	for _, b := range t.Bindings {
		if err := ch.QueueBind(string(b.Queue), string(b.RoutingKey), string(b.Exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}

	return nil
}
