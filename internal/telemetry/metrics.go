package telemetry

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const metricsNamespace = "egress_agent"

// Metrics — Prometheus метрики агента на отдельном registry.
//
// Все методы безопасны для nil-получателя: компоненты, созданные без метрик
// (например, в тестах), просто ничего не записывают.
type Metrics struct {
	registry *prometheus.Registry

	eventsReceived     *prometheus.CounterVec
	eventsMalformed    prometheus.Counter
	reconnects         *prometheus.CounterVec
	operationsExecuted *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	acksSent           *prometheus.CounterVec
	resultsPushed      *prometheus.CounterVec
	resultsOffloaded   prometheus.Counter
	queueDepth         *prometheus.GaugeVec
}

// NewMetrics создаёт registry и регистрирует метрики агента,
// а также стандартные Go и process коллекторы.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_received_total",
			Help:      "Events received from the backend event channel.",
		}, []string{"type"}),
		eventsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_malformed_total",
			Help:      "Events dropped because they could not be decoded.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "event_channel_reconnects_total",
			Help:      "Reconnect attempts of the event channel.",
		}, []string{"receiver"}),
		operationsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_executed_total",
			Help:      "Operations executed by kind and outcome.",
		}, []string{"kind", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation handler duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		acksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acks_sent_total",
			Help:      "Ack requests sent to the backend by outcome.",
		}, []string{"status"}),
		resultsPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "results_pushed_total",
			Help:      "Operation results pushed to the backend by outcome.",
		}, []string{"status"}),
		resultsOffloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "results_offloaded_total",
			Help:      "Results uploaded to storage because they exceeded the size limit.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Items waiting in internal queues.",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsReceived,
		m.eventsMalformed,
		m.reconnects,
		m.operationsExecuted,
		m.operationDuration,
		m.acksSent,
		m.resultsPushed,
		m.resultsOffloaded,
		m.queueDepth,
	)

	return m
}

// Registry возвращает registry с метриками агента.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler возвращает http.Handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FetchMetrics возвращает метрики в текстовом формате Prometheus,
// по одной строке на sample, без комментариев HELP/TYPE.
func (m *Metrics) FetchMetrics() ([]string, error) {
	if m == nil {
		return []string{}, nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	lines := make([]string, 0, len(families)*2)
	var buf bytes.Buffer
	for _, mf := range families {
		buf.Reset()
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
		for _, line := range strings.Split(buf.String(), "\n") {
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (m *Metrics) EventReceived(eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventMalformed() {
	if m == nil {
		return
	}
	m.eventsMalformed.Inc()
}

func (m *Metrics) Reconnect(receiver string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(receiver).Inc()
}

// OperationExecuted записывает исход и длительность операции.
func (m *Metrics) OperationExecuted(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsExecuted.WithLabelValues(kind, status).Inc()
	m.operationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) AckSent(ok bool) {
	if m == nil {
		return
	}
	m.acksSent.WithLabelValues(statusLabel(ok)).Inc()
}

func (m *Metrics) ResultPushed(ok bool) {
	if m == nil {
		return
	}
	m.resultsPushed.WithLabelValues(statusLabel(ok)).Inc()
}

func (m *Metrics) ResultOffloaded() {
	if m == nil {
		return
	}
	m.resultsOffloaded.Inc()
}

// SetQueueDepth обновляет глубину очереди queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
