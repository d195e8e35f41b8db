package results

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/egress-agent/internal/telemetry"
	"github.com/shaiso/egress-agent/internal/workerpool"
)

// Pusher отправляет результат операции backend'у.
type Pusher interface {
	PushResults(ctx context.Context, operationID string, result map[string]any) error
}

// QueryResultFetcher получает результат запроса, выполненного асинхронно вне агента.
type QueryResultFetcher interface {
	FetchQueryResult(ctx context.Context, queryID string, attrs *OperationAttributes) (map[string]any, error)
}

// Publisher публикует результаты операций в пуле воркеров.
//
// Перед отправкой воркер вызывает Completed для операции, чтобы ack
// не отправлялся после результата.
type Publisher struct {
	pool      *workerpool.Pool[AgentOperationResult]
	pusher    Pusher
	processor *Processor
	fetcher   QueryResultFetcher
	completed func(operationID string)
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// PublisherConfig — конфигурация Publisher.
type PublisherConfig struct {
	Workers   int // default: 1
	QueueSize int // default: 1000

	Pusher    Pusher
	Processor *Processor

	// Fetcher — источник результатов запросов (опционально).
	Fetcher QueryResultFetcher

	// Completed вызывается для каждой операции до отправки результата.
	Completed func(operationID string)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	processor := cfg.Processor
	if processor == nil {
		processor = NewProcessor(ProcessorConfig{Metrics: cfg.Metrics, Logger: logger})
	}
	completed := cfg.Completed
	if completed == nil {
		completed = func(string) {}
	}

	p := &Publisher{
		pusher:    cfg.Pusher,
		processor: processor,
		fetcher:   cfg.Fetcher,
		completed: completed,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
	p.pool = workerpool.New(workerpool.Config[AgentOperationResult]{
		Name:      "results",
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    logger,
		Handler:   p.publish,
	})
	return p
}

// Start запускает воркеров.
func (p *Publisher) Start(ctx context.Context) {
	p.pool.Start(ctx)
}

// Stop останавливает воркеров. Неотправленные результаты остаются в очереди.
func (p *Publisher) Stop() {
	p.pool.Stop()
}

// ScheduleResults ставит результат операции в очередь публикации.
func (p *Publisher) ScheduleResults(ctx context.Context, operationID string, result map[string]any, attrs *OperationAttributes) error {
	return p.schedule(ctx, AgentOperationResult{OperationID: operationID, Result: result, Attrs: attrs})
}

// ScheduleQueryResults ставит в очередь публикацию результата запроса queryID.
func (p *Publisher) ScheduleQueryResults(ctx context.Context, operationID, queryID string, attrs *OperationAttributes) error {
	return p.schedule(ctx, AgentOperationResult{OperationID: operationID, QueryID: queryID, Attrs: attrs})
}

func (p *Publisher) schedule(ctx context.Context, r AgentOperationResult) error {
	if err := p.pool.Submit(ctx, r); err != nil {
		if errors.Is(err, workerpool.ErrStopped) {
			return ErrStopped
		}
		return err
	}
	p.metrics.SetQueueDepth("results", p.pool.Len())
	return nil
}

func (p *Publisher) publish(ctx context.Context, r AgentOperationResult) {
	logger := telemetry.WithOperationID(p.logger, r.OperationID)
	p.completed(r.OperationID)

	result := r.Result
	switch {
	case r.QueryID != "":
		if p.fetcher == nil {
			logger.Error("push results for query not implemented", "query_id", r.QueryID)
			return
		}
		fetched, err := p.fetcher.FetchQueryResult(ctx, r.QueryID, r.Attrs)
		if err != nil {
			logger.Error("failed to fetch query result", "query_id", r.QueryID, "error", err)
			result = ForError(err)
		} else {
			result = fetched
		}
	case result == nil:
		logger.Error("invalid result for operation")
		return
	}

	p.push(ctx, logger, r.OperationID, result, r.Attrs)
}

func (p *Publisher) push(ctx context.Context, logger *slog.Logger, operationID string, result map[string]any, attrs *OperationAttributes) {
	processed, err := p.processor.Process(ctx, operationID, result, attrs)
	if err != nil {
		logger.Error("failed to process result", "error", err)
		processed = ForError(err)
		if attrs != nil {
			processed = WithTraceID(processed, attrs.TraceID)
		} else if traceID, ok := result[AttrTraceID].(string); ok {
			processed = WithTraceID(processed, traceID)
		}
	}

	if err := p.pusher.PushResults(ctx, operationID, processed); err != nil {
		p.metrics.ResultPushed(false)
		logger.Error("failed to push results", "error", err)
		return
	}
	p.metrics.ResultPushed(true)
	logger.Info("results pushed", "error_result", IsError(processed))
}
