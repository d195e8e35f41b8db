package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrAlreadyStarted — таймер уже запущен.
var ErrAlreadyStarted = errors.New("timer already started")

// Func — периодическая задача. Ошибка логируется и не останавливает таймер.
type Func func(ctx context.Context) error

// Service периодически вызывает Func с фиксированной паузой.
//
// Основан на cron с ConstantDelaySchedule: интервал округляется до секунд,
// минимум — одна секунда. Тики не перекрываются: если предыдущий ещё идёт,
// следующий пропускается.
type Service struct {
	name     string
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	cron       *cron.Cron
	cancelFunc context.CancelFunc
}

// Config — конфигурация Service.
type Config struct {
	Name     string
	Interval time.Duration
	Logger   *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval < time.Second {
		interval = time.Second
	}

	return &Service{
		name:     cfg.Name,
		interval: interval,
		logger:   logger.With("timer", cfg.Name),
	}
}

// Start запускает периодический вызов fn. Первый вызов — через один интервал.
func (s *Service) Start(ctx context.Context, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	cl := cronLogger{logger: s.logger}
	c := cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	), cron.WithLogger(cl))

	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil {
			s.logger.Error("timer handler failed", "error", err)
		}
	}))
	c.Start()

	s.cron = c
	s.cancelFunc = cancel
	s.logger.Debug("timer started", "interval", s.interval)
	return nil
}

// Stop останавливает таймер и ждёт завершения текущего тика.
// Повторный вызов — no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancelFunc
	s.cron = nil
	s.cancelFunc = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.logger.Debug("timer stopped")
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
