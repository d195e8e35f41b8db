package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/egress-agent/internal/ack"
	"github.com/shaiso/egress-agent/internal/backend"
	"github.com/shaiso/egress-agent/internal/config"
	"github.com/shaiso/egress-agent/internal/events"
	"github.com/shaiso/egress-agent/internal/results"
	"github.com/shaiso/egress-agent/internal/router"
	"github.com/shaiso/egress-agent/internal/runner"
	"github.com/shaiso/egress-agent/internal/storage"
	"github.com/shaiso/egress-agent/internal/telemetry"
	"github.com/shaiso/egress-agent/internal/timer"
)

const tracerName = "github.com/shaiso/egress-agent/internal/orchestrator"

// HandlerFunc выполняет операцию и возвращает ответ для публикации.
type HandlerFunc func(ctx context.Context, op runner.Operation) (map[string]any, error)

// LogsSource — источник логов для get_logs и push_logs.
// Реализуется *telemetry.LogBuffer и *repo.LogsRepo.
type LogsSource interface {
	GetLogs(ctx context.Context, limit int) ([]map[string]any, error)
}

// MetricsSource — источник метрик в текстовом формате Prometheus.
type MetricsSource interface {
	FetchMetrics() ([]string, error)
}

// Orchestrator — агент в сборе.
//
// Orchestrator:
//   - Принимает события и отправляет ack для каждой операции
//   - Разрешает путь операции и ставит её в очередь runner'а
//   - Публикует ровно один результат для каждой операции
//   - Периодически отправляет ack и логи
type Orchestrator struct {
	backend  backend.Client
	config   *config.Manager
	storage  *storage.Service
	logs     LogsSource
	source   MetricsSource
	platform Platform

	router    *router.Router[HandlerFunc]
	events    *events.Client
	runner    *runner.Runner
	ack       *ack.Sender
	publisher *results.Publisher
	logsTimer *timer.Service
	upgrader  *upgrader

	version string
	build   string
	keyID   string

	metrics *telemetry.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	// Lifecycle
	mu         sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
	stoppers   []func()
}

// Config — конфигурация Orchestrator.
type Config struct {
	Backend  backend.Client
	Receiver events.Receiver
	Config   *config.Manager

	// Storage — исполнитель storage операций и хранилище больших результатов (опционально).
	Storage *storage.Service

	// Logs — источник логов (default: пустой буфер).
	Logs LogsSource

	// MetricsSource — источник метрик (default: Metrics).
	MetricsSource MetricsSource

	// Platform — среда запуска (default: GenericPlatform без перезапуска).
	Platform Platform

	// Fetcher — источник результатов запросов для query_completed (опционально).
	Fetcher results.QueryResultFetcher

	Version             string
	Build               string
	AuthenticationKeyID string

	QueueSize int // default: 1000

	// InlineKinds — операции, выполняемые синхронно в потоке приёма событий,
	// минуя очередь runner'а.
	InlineKinds []router.Kind

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cm := cfg.Config
	if cm == nil {
		cm = config.NewInMemory(nil)
	}
	logs := cfg.Logs
	if logs == nil {
		logs = telemetry.NewLogBuffer(0)
	}
	var source MetricsSource = cfg.Metrics
	if cfg.MetricsSource != nil {
		source = cfg.MetricsSource
	}
	platform := cfg.Platform
	if platform == nil {
		platform = NewGenericPlatform("", nil, nil, logger)
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	o := &Orchestrator{
		backend:  cfg.Backend,
		config:   cm,
		storage:  cfg.Storage,
		logs:     logs,
		source:   source,
		platform: platform,
		version:  version,
		build:    cfg.Build,
		keyID:    cfg.AuthenticationKeyID,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}

	o.router = router.Default(map[router.Kind]HandlerFunc{
		router.KindStorageExecute: o.executeStorage,
		router.KindHealth:         o.executeHealth,
		router.KindGetLogs:        o.executeGetLogs,
		router.KindGetMetrics:     o.executeGetMetrics,
		router.KindPushMetrics:    o.executePushMetrics,
		router.KindPushLogs:       o.executePushLogs,
		router.KindUpgrade:        o.executeUpgrade,
	})
	if len(cfg.InlineKinds) > 0 {
		o.router = o.router.Inline(cfg.InlineKinds...)
	}

	o.ack = ack.New(ack.Config{
		Send:     o.sendAck,
		Interval: time.Duration(cm.GetInt(config.KeyAckIntervalSeconds, config.DefaultAckIntervalSeconds)) * time.Second,
		Metrics:  cfg.Metrics,
		Logger:   logger.With("component", "ack"),
	})

	var uploader results.Uploader
	if cfg.Storage != nil {
		uploader = cfg.Storage
	}
	o.publisher = results.NewPublisher(results.PublisherConfig{
		Workers:   cm.GetInt(config.KeyPublisherThreadCount, config.DefaultPublisherThreadCount),
		QueueSize: cfg.QueueSize,
		Pusher:    cfg.Backend,
		Processor: results.NewProcessor(results.ProcessorConfig{
			Config:   cm,
			Uploader: uploader,
			Metrics:  cfg.Metrics,
			Logger:   logger.With("component", "results"),
		}),
		Fetcher:   cfg.Fetcher,
		Completed: o.ack.Completed,
		Metrics:   cfg.Metrics,
		Logger:    logger.With("component", "publisher"),
	})

	o.runner = runner.New(runner.Config{
		Workers:   cm.GetInt(config.KeyOpsRunnerThreadCount, config.DefaultOpsRunnerThreadCount),
		QueueSize: cfg.QueueSize,
		Execute:   o.execute,
		Metrics:   cfg.Metrics,
		Logger:    logger.With("component", "runner"),
	})

	o.logsTimer = timer.New(timer.Config{
		Name:     "push_logs",
		Interval: time.Duration(cm.GetInt(config.KeyPushLogsIntervalSeconds, config.DefaultPushLogsIntervalSeconds)) * time.Second,
		Logger:   logger,
	})

	if cfg.Receiver != nil {
		o.events = events.NewClient(events.ClientConfig{
			Receiver: cfg.Receiver,
			Metrics:  cfg.Metrics,
			Logger:   logger,
		})
	}

	o.upgrader = newUpgrader(cm, platform, logger.With("component", "upgrade"))
	return o
}

// Start запускает компоненты агента.
// При ошибке уже запущенные компоненты останавливаются в обратном порядке.
func (o *Orchestrator) Start(ctx context.Context) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel
	defer func() {
		if err != nil {
			o.stopLocked()
		}
	}()

	o.publisher.Start(ctx)
	o.stoppers = append(o.stoppers, o.publisher.Stop)

	o.runner.Start(ctx)
	o.stoppers = append(o.stoppers, o.runner.Stop)

	if err := o.ack.Start(ctx); err != nil {
		return fmt.Errorf("start ack sender: %w", err)
	}
	o.stoppers = append(o.stoppers, o.ack.Stop)

	if err := o.logsTimer.Start(ctx, o.pushLogs); err != nil {
		return fmt.Errorf("start logs timer: %w", err)
	}
	o.stoppers = append(o.stoppers, o.logsTimer.Stop)

	if o.events != nil {
		if err := o.events.Start(ctx, o.handleEvent); err != nil {
			return fmt.Errorf("start events client: %w", err)
		}
		o.stoppers = append(o.stoppers, o.events.Stop)
	} else {
		o.logger.Warn("no event receiver configured, operations will not be received")
	}

	o.running = true
	o.logger.Info("egress agent started",
		"version", o.version,
		"build", o.build,
		"platform", o.platform.Name(),
	)
	return nil
}

// Stop останавливает компоненты в порядке, обратном запуску.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running && len(o.stoppers) == 0 {
		return
	}
	o.logger.Info("stopping egress agent...")
	o.stopLocked()
	o.logger.Info("egress agent stopped")
}

func (o *Orchestrator) stopLocked() {
	for i := len(o.stoppers) - 1; i >= 0; i-- {
		o.stoppers[i]()
	}
	o.stoppers = nil
	if o.cancelFunc != nil {
		o.cancelFunc()
		o.cancelFunc = nil
	}
	o.running = false
}

// IsRunning сообщает, запущен ли агент.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// UpgradeState возвращает состояние удалённого обновления.
func (o *Orchestrator) UpgradeState() UpgradeState {
	return o.upgrader.State()
}

// handleEvent обрабатывает событие в горутине приёма событий.
func (o *Orchestrator) handleEvent(ctx context.Context, ev events.Event) {
	if !ev.IsOperation() {
		switch ev.Type {
		case events.TypePushMetrics:
			o.scheduleSynthetic(ctx, router.PathPushMetrics, nil)
		default:
			o.logger.Warn("unknown control event", "type", ev.Type)
		}
		return
	}

	logger := telemetry.WithOperationID(o.logger, ev.OperationID)
	o.ack.Schedule(ev.OperationID)

	if ev.Path == "" {
		logger.Error("operation event without path, dropping")
		return
	}
	logger.Info("received agent operation", "path", ev.Path)

	event := maps.Clone(ev.Raw)
	op := runner.Operation{ID: ev.OperationID, Event: event}

	if exceeded, _ := ev.Operation[results.AttrSizeExceeded].(bool); exceeded {
		logger.Info("downloading operation from backend")
		payload, err := o.backend.DownloadOperation(ctx, ev.OperationID)
		if err != nil {
			logger.Error("failed to download operation", "error", err)
			o.publish(ctx, op, results.WithTraceID(
				results.ForError(fmt.Errorf("download operation: %w", err)), op.TraceID()))
			return
		}
		event["operation"] = payload
	}

	mapping, ok := o.router.Resolve(ev.Path)
	if !ok {
		logger.Error("invalid path received, dropping", "path", ev.Path)
		return
	}

	if !mapping.Schedule {
		o.dispatch(ctx, op, mapping)
		return
	}
	if err := o.runner.Schedule(ctx, op); err != nil {
		logger.Error("failed to schedule operation", "error", err)
	}
}

// scheduleSynthetic ставит в очередь операцию, инициированную самим агентом.
func (o *Orchestrator) scheduleSynthetic(ctx context.Context, path string, extra map[string]any) {
	event := map[string]any{"path": path}
	maps.Copy(event, extra)

	op := runner.Operation{ID: path, Event: event, Synthetic: true}
	if err := o.runner.Schedule(ctx, op); err != nil {
		o.logger.Error("failed to schedule operation", "path", path, "error", err)
	}
}

// pushLogs — тик таймера логов.
func (o *Orchestrator) pushLogs(ctx context.Context) error {
	limit := o.config.GetInt(config.KeyLogsFetchLimit, config.DefaultLogsFetchLimit)
	o.scheduleSynthetic(ctx, router.PathPushLogs, map[string]any{"limit": limit})
	return nil
}

// execute выполняется воркером runner'а. Путь разрешается заново.
func (o *Orchestrator) execute(ctx context.Context, op runner.Operation) {
	mapping, ok := o.router.Resolve(op.Path())
	if !ok {
		o.logger.Error("no handler mapped to operation path", "operation_id", op.ID, "path", op.Path())
		if !op.Synthetic {
			o.publish(ctx, op, results.WithTraceID(
				results.ForErrorMessage(fmt.Sprintf("Unsupported operation path: %s", op.Path())), op.TraceID()))
		}
		return
	}
	o.dispatch(ctx, op, mapping)
}

func (o *Orchestrator) sendAck(ctx context.Context, operationID string) error {
	_, err := o.backend.ExecuteOperation(ctx, backend.AckPath(operationID), http.MethodPost, nil)
	return err
}

// publish ставит результат в очередь публикации.
func (o *Orchestrator) publish(ctx context.Context, op runner.Operation, reply map[string]any) {
	attrs := results.AttributesFromOperation(op.ID, op.TraceID(), op.Payload())
	if err := o.publisher.ScheduleResults(ctx, op.ID, reply, attrs); err != nil {
		o.logger.Error("failed to schedule result", "operation_id", op.ID, "error", err)
	}
}
