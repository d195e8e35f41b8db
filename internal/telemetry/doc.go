// Package telemetry обеспечивает наблюдаемость агента.
//
// Включает:
//   - logging.go   — structured logging через slog
//   - logbuffer.go — кольцевой буфер последних записей лога (источник для get/push logs)
//   - metrics.go   — Prometheus метрики агента и их выгрузка в текстовом формате
//   - tracing.go   — OpenTelemetry tracer provider
//
// Все компоненты используют единый формат логирования,
// метрики экспортируются на /metrics и отправляются в backend операцией push_metrics.
package telemetry
