package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает тело сообщения.
// Ошибка означает, что сообщение не обработано (nack без requeue → DLQ).
type Handler func(ctx context.Context, body []byte) error

// Channel — подмножество *amqp.Channel, нужное Consumer.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Source предоставляет текущий канал и уведомления о переподключении.
// Реализуется *Connection.
type Source interface {
	Channel() *amqp.Channel
	ReconnectNotify() <-chan struct{}
}

// Consumer потребляет очередь событий агента.
type Consumer struct {
	source   Source
	logger   *slog.Logger
	queue    string
	prefetch int
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue    string
	Prefetch int // default: 1
	Logger   *slog.Logger
}

// NewConsumer создаёт Consumer.
func NewConsumer(source Source, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue := cfg.Queue
	if queue == "" {
		queue = string(QueueAgentEvents)
	}

	return &Consumer{
		source:   source,
		logger:   logger,
		queue:    queue,
		prefetch: prefetch,
	}
}

// Run потребляет сообщения до отмены ctx.
// После потери канала ждёт переподключения и подписывается заново.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "queue", c.queue, "error", err)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started", "queue", c.queue)

		err = Drain(ctx, deliveries, handler, c.logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "queue", c.queue, "error", err)
		if err := c.waitReconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.source.ReconnectNotify():
		c.logger.Info("reconnected, resubscribing", "queue", c.queue)
		return nil
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.source.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	return Subscribe(ch, c.queue, c.prefetch)
}

// Subscribe выставляет prefetch и начинает потребление с ручным ack.
func Subscribe(ch Channel, queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}

// Drain передаёт доставки handler'у, пока канал открыт.
// Успешно обработанные сообщения подтверждаются, остальные
// отклоняются без возврата в очередь.
func Drain(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			if err := handler(ctx, d.Body); err != nil {
				logger.Error("handler failed", "delivery_tag", d.DeliveryTag, "error", err)
				if nackErr := d.Nack(false, false); nackErr != nil && !errors.Is(nackErr, amqp.ErrClosed) {
					logger.Warn("nack failed", "error", nackErr)
				}
				continue
			}
			if ackErr := d.Ack(false); ackErr != nil && !errors.Is(ackErr, amqp.ErrClosed) {
				logger.Warn("ack failed", "error", ackErr)
			}
		}
	}
}
