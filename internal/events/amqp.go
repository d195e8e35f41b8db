package events

import (
	"context"
	"log/slog"

	"github.com/shaiso/egress-agent/internal/mq"
)

// Consumer — источник сообщений очереди. Реализуется *mq.Consumer.
type Consumer interface {
	Run(ctx context.Context, handler mq.Handler) error
}

// AMQPReceiver получает события из очереди RabbitMQ.
// Каждое сообщение — одно JSON событие. Сообщение подтверждается после
// передачи событию обработчику, в том числе некорректное.
type AMQPReceiver struct {
	consumer Consumer
	logger   *slog.Logger
}

// NewAMQPReceiver создаёт AMQPReceiver.
func NewAMQPReceiver(consumer Consumer, logger *slog.Logger) *AMQPReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPReceiver{
		consumer: consumer,
		logger:   logger.With("receiver", "amqp"),
	}
}

func (r *AMQPReceiver) Name() string { return "amqp" }

// Run потребляет очередь до отмены ctx.
func (r *AMQPReceiver) Run(ctx context.Context, deliver DeliverFunc) error {
	return r.consumer.Run(ctx, func(ctx context.Context, body []byte) error {
		deliver(ctx, body)
		return nil
	})
}
