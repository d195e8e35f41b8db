package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shaiso/egress-agent/internal/results"
)

// Service — операции агента, доступные через HTTP.
// Реализуется *orchestrator.Orchestrator.
type Service interface {
	HealthInformation(traceID string) map[string]any
	RunReachabilityTest(ctx context.Context, traceID string) (map[string]any, error)
	QueryCompleted(ctx context.Context, operationJSON []byte, queryID string) error
	IsRunning() bool
}

// Handler — HTTP обработчики агента.
type Handler struct {
	service Service
	metrics http.Handler
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service Service

	// Metrics — обработчик /metrics (опционально).
	Metrics http.Handler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: cfg.Service,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Healthcheck — readiness probe.
func (h *Handler) Healthcheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// Healthz сообщает, запущен ли агент.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if !h.service.IsRunning() {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health возвращает сведения об агенте для локальной диагностики.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.service.HealthInformation(r.URL.Query().Get("trace_id")))
}

// HealthRows возвращает сведения об агенте в формате external function.
func (h *Handler) HealthRows(w http.ResponseWriter, _ *http.Request) {
	Rows(w, h.logger, h.service.HealthInformation(""))
}

// Reachability проверяет связь с backend'ом.
func (h *Handler) Reachability(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.RunReachabilityTest(r.Context(), r.URL.Query().Get("trace_id"))
	if err != nil {
		h.logger.Error("reachability test failed", "error", err)
		BadGateway(w, err.Error())
		return
	}
	Rows(w, h.logger, resp)
}

// queryCompletedRequest — тело уведомления о завершении запроса.
type queryCompletedRequest struct {
	Operation json.RawMessage `json:"operation"`
	QueryID   string          `json:"query_id"`

	// Data — тот же вызов в формате external function: [[0, operation, query_id]].
	Data [][]json.RawMessage `json:"data"`
}

// QueryCompleted принимает уведомление о завершении запроса.
func (h *Handler) QueryCompleted(w http.ResponseWriter, r *http.Request) {
	var req queryCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	operation, queryID, err := req.arguments()
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.service.QueryCompleted(r.Context(), operation, queryID); err != nil {
		if errors.Is(err, results.ErrStopped) {
			ServiceUnavailable(w, err.Error())
			return
		}
		BadRequest(w, err.Error())
		return
	}
	JSON(w, http.StatusOK, RowsResponse{Data: [][]any{{0, "ok"}}})
}

func (req queryCompletedRequest) arguments() ([]byte, string, error) {
	operation, queryID := []byte(req.Operation), req.QueryID
	if len(req.Data) > 0 {
		row := req.Data[0]
		if len(row) < 3 {
			return nil, "", errors.New("data row must contain operation and query_id")
		}
		operation = row[1]
		if err := json.Unmarshal(row[2], &queryID); err != nil {
			return nil, "", errors.New("query_id must be a string")
		}
	}

	if len(operation) == 0 {
		return nil, "", errors.New("operation is required")
	}
	// operation может прийти JSON-строкой
	var s string
	if err := json.Unmarshal(operation, &s); err == nil {
		operation = []byte(s)
	}
	return operation, queryID, nil
}
