package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Пути backend API агента.
const (
	PathEvents  = "/api/v1/agent/events"
	PathMetrics = "/api/v1/agent/metrics"
	PathLogs    = "/api/v1/agent/logs"
	PathPing    = "/api/v1/test/ping"
)

// Заголовки аутентификации агента.
const (
	HeaderAgentID    = "x-mcd-id"
	HeaderAgentToken = "x-mcd-token"
)

// AckPath возвращает путь ack для операции.
func AckPath(operationID string) string {
	return "/api/v1/agent/operations/" + url.PathEscape(operationID) + "/ack"
}

// OperationPath возвращает путь загрузки тела операции.
func OperationPath(operationID string) string {
	return "/api/v1/agent/operations/" + url.PathEscape(operationID) + "/operation"
}

// ResultPath возвращает путь отправки результата операции.
func ResultPath(operationID string) string {
	return "/api/v1/agent/operations/" + url.PathEscape(operationID) + "/result"
}

// Client — исходящие вызовы агента к backend'у.
type Client interface {
	ExecuteOperation(ctx context.Context, path, method string, payload map[string]any) (map[string]any, error)
	DownloadOperation(ctx context.Context, operationID string) (map[string]any, error)
	PushResults(ctx context.Context, operationID string, result map[string]any) error
}

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxTries = 3
)

// HTTPClient — Client поверх HTTP.
//
// Ошибки транспорта и ответы 5xx повторяются с экспоненциальной задержкой,
// 4xx возвращаются сразу.
type HTTPClient struct {
	baseURL    string
	agentID    string
	token      string
	httpClient *http.Client
	stream     *http.Client
	maxTries   uint
	initial    time.Duration
	logger     *slog.Logger
}

// Config — конфигурация HTTPClient.
type Config struct {
	BaseURL string
	AgentID string
	Token   string

	Timeout  time.Duration // default: 30s
	MaxTries uint          // default: 3

	// RetryInterval — начальная задержка между попытками (default: 500ms).
	RetryInterval time.Duration

	Logger *slog.Logger
}

// NewHTTPClient создаёт HTTPClient.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = defaultMaxTries
	}
	initial := cfg.RetryInterval
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		agentID:    cfg.AgentID,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		stream:     &http.Client{},
		maxTries:   maxTries,
		initial:    initial,
		logger:     logger.With("component", "backend"),
	}
}

// ExecuteOperation выполняет запрос к backend'у и возвращает JSON ответ.
// Пустой ответ — пустой map; не-JSON ответ возвращается в поле "body".
func (c *HTTPClient) ExecuteOperation(ctx context.Context, path, method string, payload map[string]any) (map[string]any, error) {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = data
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial

	return backoff.Retry(ctx, func() (map[string]any, error) {
		return c.do(ctx, method, path, body)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("backend request failed, retrying", "path", path, "error", err, "retry_in", next)
		}),
	)
}

// DownloadOperation загружает тело операции, не поместившееся в событие.
func (c *HTTPClient) DownloadOperation(ctx context.Context, operationID string) (map[string]any, error) {
	return c.ExecuteOperation(ctx, OperationPath(operationID), http.MethodGet, nil)
}

// PushResults отправляет результат операции.
func (c *HTTPClient) PushResults(ctx context.Context, operationID string, result map[string]any) error {
	_, err := c.ExecuteOperation(ctx, ResultPath(operationID), http.MethodPost, result)
	return err
}

// OpenEventStream открывает долгоживущий SSE поток событий агента.
func (c *HTTPClient) OpenEventStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, PathEvents, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderAgentID, c.agentID)
	req.Header.Set(HeaderAgentToken, c.token)
	return req, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (map[string]any, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, statusError(resp)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, backoff.Permanent(statusError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	return decodeBody(data), nil
}

func decodeBody(data []byte) map[string]any {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{"body": string(data)}
	}
	return out
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
