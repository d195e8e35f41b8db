package events

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/shaiso/egress-agent/internal/telemetry"
)

// maxEventSize — максимальный размер строки SSE потока.
const maxEventSize = 16 << 20

// StreamOpener открывает SSE поток событий. Реализуется *backend.HTTPClient.
type StreamOpener interface {
	OpenEventStream(ctx context.Context) (io.ReadCloser, error)
}

// SSEReceiver получает события из долгоживущего SSE соединения.
// После разрыва переподключается с экспоненциальной задержкой.
type SSEReceiver struct {
	opener      StreamOpener
	initial     time.Duration
	maxInterval time.Duration
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// SSEConfig — конфигурация SSEReceiver.
type SSEConfig struct {
	Opener StreamOpener

	InitialInterval time.Duration // default: 1s
	MaxInterval     time.Duration // default: 60s

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewSSEReceiver создаёт SSEReceiver.
func NewSSEReceiver(cfg SSEConfig) *SSEReceiver {
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SSEReceiver{
		opener:      cfg.Opener,
		initial:     initial,
		maxInterval: maxInterval,
		metrics:     cfg.Metrics,
		logger:      logger.With("receiver", "sse"),
	}
}

func (r *SSEReceiver) Name() string { return "sse" }

// Run читает поток до отмены ctx.
func (r *SSEReceiver) Run(ctx context.Context, deliver DeliverFunc) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.maxInterval
	b.RandomizationFactor = 0.5
	b.Reset()

	for {
		err := r.consume(ctx, deliver, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := b.NextBackOff()
		r.metrics.Reconnect(r.Name())
		r.logger.Warn("event stream disconnected, reconnecting", "error", err, "retry_in", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (r *SSEReceiver) consume(ctx context.Context, deliver DeliverFunc, b *backoff.ExponentialBackOff) error {
	stream, err := r.opener.OpenEventStream(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	b.Reset()
	r.logger.Info("event stream connected")

	err = ReadStream(stream, func(data []byte) {
		deliver(ctx, data)
	})
	if err == nil {
		err = io.EOF
	}
	return err
}

// ReadStream разбирает SSE поток и вызывает fn для каждого события.
// Строки data: одного события склеиваются через перевод строки;
// комментарии (":"), прочие поля и пустые keepalive-события игнорируются.
func ReadStream(r io.Reader, fn func(data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data []byte
	var has bool
	flush := func() {
		if has && len(bytes.TrimSpace(data)) > 0 {
			fn(data)
		}
		data = nil
		has = false
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			flush()
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if has {
			data = append(data, '\n')
		}
		data = append(data, value...)
		has = true
	}
	flush()

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
