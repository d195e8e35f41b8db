package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher отправляет события в очередь агента.
// Используется CLI для ручной постановки операций и в интеграционных прогонах.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// PublishEvent публикует JSON событие в exchange агента.
// Тело должно быть валидным JSON.
func (p *Publisher) PublishEvent(ctx context.Context, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("publish event: body is not valid JSON")
	}

	msgID := uuid.New().String()
	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx,
			string(ExchangeAgent),
			string(RoutingKeyEvents),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msgID,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeAgent, RoutingKeyEvents, err)
		}

		p.logger.Debug("published event", "message_id", msgID, "size", len(body))
		return nil
	})
}
