package ack

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shaiso/egress-agent/internal/telemetry"
	"github.com/shaiso/egress-agent/internal/timer"
)

// SendFunc отправляет ack для одной операции.
type SendFunc func(ctx context.Context, operationID string) error

// Sender периодически подтверждает backend'у получение операций.
//
// На каждом тике ack отправляется для всех операций из набора. Успешно
// подтверждённая операция удаляется, неудачная остаётся до следующего тика.
// Если результат опубликован раньше тика (Completed), ack не отправляется.
type Sender struct {
	send    SendFunc
	timer   *timer.Service
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// Config — конфигурация Sender.
type Config struct {
	Send     SendFunc
	Interval time.Duration // default: 5s
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// New создаёт Sender.
func New(cfg Config) *Sender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Sender{
		send:    cfg.Send,
		timer:   timer.New(timer.Config{Name: "ack", Interval: interval, Logger: logger}),
		metrics: cfg.Metrics,
		logger:  logger,
		pending: make(map[string]struct{}),
	}
}

// Schedule добавляет операцию в набор ожидающих ack.
func (s *Sender) Schedule(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[operationID] = struct{}{}
}

// Completed убирает операцию из набора: результат отправлен, ack больше не нужен.
func (s *Sender) Completed(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, operationID)
}

func (s *Sender) isPending(operationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[operationID]
	return ok
}

// Pending возвращает отсортированный список ожидающих операций.
func (s *Sender) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Flush отправляет ack для всех ожидающих операций.
// Отправка идёт вне блокировки; перед каждой отправкой операция проверяется
// повторно, ack для завершённой за время Flush операции не отправляется.
func (s *Sender) Flush(ctx context.Context) error {
	ids := s.Pending()
	if len(ids) == 0 {
		return nil
	}

	var failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.isPending(id) {
			continue
		}
		if err := s.send(ctx, id); err != nil {
			failed++
			s.metrics.AckSent(false)
			s.logger.Error("failed to send ack", "operation_id", id, "error", err)
			continue
		}
		s.metrics.AckSent(true)
		s.Completed(id)
		s.logger.Debug("ack sent", "operation_id", id)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrFlushIncomplete, failed, len(ids))
	}
	return nil
}

// Start запускает периодический Flush.
func (s *Sender) Start(ctx context.Context) error {
	return s.timer.Start(ctx, s.Flush)
}

// Stop останавливает таймер.
func (s *Sender) Stop() {
	s.timer.Stop()
}
