package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/shaiso/egress-agent/internal/telemetry"
)

// DeliverFunc получает сырое тело события.
type DeliverFunc func(ctx context.Context, data []byte)

// Handler обрабатывает декодированное событие.
// Вызывается в горутине приёма событий.
type Handler func(ctx context.Context, ev Event)

// Receiver — источник событий (SSE, AMQP).
// Run блокируется до отмены ctx.
type Receiver interface {
	Name() string
	Run(ctx context.Context, deliver DeliverFunc) error
}

// Client принимает события в отдельной горутине и передаёт их Handler'у.
type Client struct {
	receiver Receiver
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// ClientConfig — конфигурация Client.
type ClientConfig struct {
	Receiver Receiver
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// NewClient создаёт Client.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		receiver: cfg.Receiver,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "events"),
	}
}

// Start запускает приём событий.
func (c *Client) Start(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelFunc != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		c.logger.Info("event ingestion started", "receiver", c.receiver.Name())
		err := c.receiver.Run(ctx, c.deliver(handler))
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("event receiver stopped", "error", err)
		}
	}(c.done)

	return nil
}

// Stop останавливает приём событий и ждёт завершения горутины.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.cancelFunc, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("event ingestion stopped")
}

func (c *Client) deliver(handler Handler) DeliverFunc {
	return func(ctx context.Context, data []byte) {
		ev, err := Decode(data)
		if err != nil {
			c.metrics.EventMalformed()
			c.logger.Error("dropping malformed event", "error", err, "size", len(data))
			return
		}

		eventType := ev.Type
		if ev.IsOperation() {
			eventType = "operation"
		}
		c.metrics.EventReceived(eventType)

		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("event handler panicked",
					"error", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		handler(ctx, ev)
	}
}
