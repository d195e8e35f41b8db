package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/shaiso/egress-agent/internal/config"
	"github.com/shaiso/egress-agent/internal/telemetry"
)

// Uploader сохраняет тело результата и возвращает его location.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) (string, error)
}

// Processor готовит результат к отправке: добавляет trace id и выгружает
// результаты больше лимита в хранилище, заменяя тело ссылкой.
type Processor struct {
	config   *config.Manager
	uploader Uploader
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// ProcessorConfig — конфигурация Processor.
type ProcessorConfig struct {
	// Config — источник лимита и флага сжатия для результатов без атрибутов.
	Config *config.Manager

	// Uploader — хранилище для больших результатов (опционально).
	Uploader Uploader

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewProcessor создаёт Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cm := cfg.Config
	if cm == nil {
		cm = config.NewInMemory(nil)
	}
	return &Processor{
		config:   cm,
		uploader: cfg.Uploader,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Process возвращает производный результат, готовый к отправке.
// Входной map не изменяется.
func (p *Processor) Process(ctx context.Context, operationID string, result map[string]any, attrs *OperationAttributes) (map[string]any, error) {
	out := maps.Clone(result)
	if out == nil {
		out = map[string]any{}
	}
	if attrs != nil {
		out = WithTraceID(out, attrs.TraceID)
	}

	// Бинарный результат отправляется как есть, без проверки размера.
	switch body := out[AttrResult].(type) {
	case []byte:
		return out, nil
	case io.Reader:
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read binary result: %w", err)
		}
		out[AttrResult] = data
		return out, nil
	}

	serialized, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("serialize result: %w", err)
	}

	limit, compress := p.limits(attrs)
	if len(serialized) <= limit {
		return out, nil
	}

	p.logger.Info("result exceeds size limit, uploading to storage",
		"operation_id", operationID,
		"size", len(serialized),
		"limit", limit,
		"compress", compress,
	)

	if p.uploader == nil {
		return nil, ErrNoUploader
	}

	key := fmt.Sprintf("responses/%s/%s.json", operationID, uuid.NewString())
	body := serialized
	if compress {
		body, err = gzipBytes(serialized)
		if err != nil {
			return nil, err
		}
		key += ".gz"
	}

	location, err := p.uploader.Upload(ctx, key, body)
	if err != nil {
		return nil, fmt.Errorf("upload result: %w", err)
	}
	p.metrics.ResultOffloaded()

	ref := map[string]any{
		AttrResultLocation:   location,
		AttrResultCompressed: compress,
	}
	if traceID, ok := out[AttrTraceID]; ok {
		ref[AttrTraceID] = traceID
	}
	return ref, nil
}

func (p *Processor) limits(attrs *OperationAttributes) (int, bool) {
	if attrs != nil {
		limit := attrs.ResponseSizeLimitBytes
		if limit <= 0 {
			limit = DefaultResponseSizeLimitBytes
		}
		return limit, attrs.CompressResponseFile
	}
	return p.config.GetInt(config.KeyResponseSizeLimitBytes, config.DefaultResponseSizeLimitBytes),
		p.config.GetBool(config.KeyCompressResponseFile, config.DefaultCompressResponseFile)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip result: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip result: %w", err)
	}
	return buf.Bytes(), nil
}
