package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/egress-agent/internal/backend"
	"github.com/shaiso/egress-agent/internal/config"
	"github.com/shaiso/egress-agent/internal/results"
	"github.com/shaiso/egress-agent/internal/router"
	"github.com/shaiso/egress-agent/internal/runner"
	"github.com/shaiso/egress-agent/internal/telemetry"
)

// dispatch выполняет обработчик и публикует результат.
//
// Паника обработчика превращается в ошибку, ошибка — в результат-ошибку
// с trace id операции. Для синтетических операций результат не публикуется.
func (o *Orchestrator) dispatch(ctx context.Context, op runner.Operation, m router.Mapping[HandlerFunc]) {
	traceID := op.TraceID()
	kind := m.Kind.String()

	logger := telemetry.WithTraceID(telemetry.WithOperationID(o.logger, op.ID), traceID).With("kind", kind)
	ctx = telemetry.WithLogger(ctx, logger)

	ctx, span := o.tracer.Start(ctx, "operation."+kind,
		trace.WithAttributes(
			attribute.String("agent.operation_id", op.ID),
			attribute.String("agent.trace_id", traceID),
			attribute.String("agent.path", op.Path()),
			attribute.Bool("agent.synthetic", op.Synthetic),
		),
	)
	defer span.End()

	start := time.Now()
	reply, err := invoke(ctx, op, m.Handler)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.OperationExecuted(kind, "error", duration)
		logger.Error("operation failed", "error", err, "duration", duration)
		reply = results.WithTraceID(results.ForError(err), traceID)
	} else {
		o.metrics.OperationExecuted(kind, "ok", duration)
		logger.Debug("operation executed", "duration", duration)
	}

	if op.Synthetic {
		return
	}
	if reply == nil {
		reply = map[string]any{}
	}
	o.publish(ctx, op, reply)
}

func invoke(ctx context.Context, op runner.Operation, h HandlerFunc) (reply map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.FromContext(ctx).Error("operation handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPath, op.Path())
	}
	return h(ctx, op)
}

// --- Handlers ---

func (o *Orchestrator) executeStorage(ctx context.Context, op runner.Operation) (map[string]any, error) {
	if o.storage == nil {
		return nil, ErrNoStorage
	}
	return o.storage.ExecuteOperation(ctx, op.Payload())
}

func (o *Orchestrator) executeHealth(_ context.Context, op runner.Operation) (map[string]any, error) {
	return o.HealthInformation(op.TraceID()), nil
}

func (o *Orchestrator) executeGetLogs(ctx context.Context, op runner.Operation) (map[string]any, error) {
	limit := limitFrom(op.Payload(), o.config.GetInt(config.KeyLogsFetchLimit, config.DefaultLogsFetchLimit))

	logs, err := o.logs.GetLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	return map[string]any{
		results.AttrResult:  map[string]any{"events": logs},
		results.AttrTraceID: op.TraceID(),
	}, nil
}

func (o *Orchestrator) executeGetMetrics(_ context.Context, op runner.Operation) (map[string]any, error) {
	metrics, err := o.fetchMetrics()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		results.AttrResult:  metrics,
		results.AttrTraceID: op.TraceID(),
	}, nil
}

func (o *Orchestrator) executePushMetrics(ctx context.Context, _ runner.Operation) (map[string]any, error) {
	metrics, err := o.fetchMetrics()
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"format":  "prometheus",
		"metrics": metrics,
	}
	if _, err := o.backend.ExecuteOperation(ctx, backend.PathMetrics, http.MethodPost, payload); err != nil {
		return nil, fmt.Errorf("push metrics: %w", err)
	}
	return nil, nil
}

func (o *Orchestrator) executePushLogs(ctx context.Context, op runner.Operation) (map[string]any, error) {
	limit := limitFrom(op.Event, config.DefaultLogsFetchLimit)

	logs, err := o.logs.GetLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	telemetry.FromContext(ctx).Info("pushing logs", "count", len(logs))

	if _, err := o.backend.ExecuteOperation(ctx, backend.PathLogs, http.MethodPost, map[string]any{"logs": logs}); err != nil {
		return nil, fmt.Errorf("push logs: %w", err)
	}
	return nil, nil
}

func (o *Orchestrator) executeUpgrade(ctx context.Context, op runner.Operation) (map[string]any, error) {
	parameters, _ := op.Payload()["parameters"].(map[string]any)
	if err := o.upgrader.Upgrade(ctx, parameters); err != nil {
		return nil, err
	}
	return map[string]any{
		results.AttrResult:  map[string]any{"updated": true},
		results.AttrTraceID: op.TraceID(),
	}, nil
}

func (o *Orchestrator) fetchMetrics() ([]string, error) {
	if o.source == nil {
		return []string{}, nil
	}
	metrics, err := o.source.FetchMetrics()
	if err != nil {
		return nil, fmt.Errorf("fetch metrics: %w", err)
	}
	return metrics, nil
}

// limitFrom возвращает положительное поле "limit" из m, иначе def.
func limitFrom(m map[string]any, def int) int {
	switch v := m["limit"].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}
