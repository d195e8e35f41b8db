package runner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/egress-agent/internal/telemetry"
	"github.com/shaiso/egress-agent/internal/workerpool"
)

// ErrStopped — runner остановлен.
var ErrStopped = workerpool.ErrStopped

// ExecuteFunc выполняет операцию в воркере.
// Путь операции разрешается заново в момент выполнения.
type ExecuteFunc func(ctx context.Context, op Operation)

// Runner выполняет операции в пуле воркеров.
type Runner struct {
	pool    *workerpool.Pool[Operation]
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Config — конфигурация Runner.
type Config struct {
	Workers   int // default: 1
	QueueSize int // default: 1000
	Execute   ExecuteFunc
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		metrics: cfg.Metrics,
		logger:  logger,
	}
	r.pool = workerpool.New(workerpool.Config[Operation]{
		Name:      "operations",
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    logger,
		Handler: func(ctx context.Context, op Operation) {
			r.metrics.SetQueueDepth("operations", r.pool.Len())
			cfg.Execute(ctx, op)
		},
	})
	return r
}

// Start запускает воркеров.
func (r *Runner) Start(ctx context.Context) {
	r.pool.Start(ctx)
}

// Stop останавливает воркеров и ждёт их завершения.
func (r *Runner) Stop() {
	r.pool.Stop()
}

// Schedule ставит операцию в очередь. Блокируется, пока очередь заполнена.
func (r *Runner) Schedule(ctx context.Context, op Operation) error {
	if err := r.pool.Submit(ctx, op); err != nil {
		if !errors.Is(err, ErrStopped) {
			r.logger.Warn("failed to schedule operation", "operation_id", op.ID, "error", err)
		}
		return err
	}
	r.metrics.SetQueueDepth("operations", r.pool.Len())
	return nil
}
