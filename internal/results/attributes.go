package results

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Атрибуты результата на проводе.
const (
	AttrResult           = "__mcd_result__"
	AttrTraceID          = "__mcd_trace_id__"
	AttrError            = "__mcd_error__"
	AttrErrorType        = "__mcd_error_type__"
	AttrErrorAttrs       = "__mcd_error_attrs__"
	AttrResultLocation   = "__mcd_result_location__"
	AttrResultCompressed = "__mcd_result_compressed__"
	AttrSizeExceeded     = "__mcd_size_exceeded__"
)

// Значения атрибутов по умолчанию.
const (
	DefaultCompressResponseFile   = true
	DefaultResponseSizeLimitBytes = 20_000_000
)

// OperationAttributes — параметры доставки результата операции.
type OperationAttributes struct {
	OperationID            string `json:"operation_id"`
	CompressResponseFile   bool   `json:"compress_response_file"`
	ResponseSizeLimitBytes int    `json:"response_size_limit_bytes"`
	JobType                string `json:"job_type,omitempty"`
	TraceID                string `json:"trace_id"`
}

func defaultAttributes() OperationAttributes {
	return OperationAttributes{
		CompressResponseFile:   DefaultCompressResponseFile,
		ResponseSizeLimitBytes: DefaultResponseSizeLimitBytes,
	}
}

// ParseAttributes разбирает атрибуты из JSON.
// Отсутствующие поля получают значения по умолчанию, trace_id — новый UUID.
func ParseAttributes(data []byte) (*OperationAttributes, error) {
	attrs := defaultAttributes()
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAttributes, err)
	}
	if attrs.ResponseSizeLimitBytes <= 0 {
		attrs.ResponseSizeLimitBytes = DefaultResponseSizeLimitBytes
	}
	if attrs.TraceID == "" {
		attrs.TraceID = uuid.NewString()
	}
	return &attrs, nil
}

// AttributesFromOperation строит атрибуты из тела операции.
// trace_id берётся из тела, иначе используется traceID.
func AttributesFromOperation(operationID, traceID string, payload map[string]any) *OperationAttributes {
	attrs := defaultAttributes()
	attrs.OperationID = operationID
	attrs.TraceID = traceID

	if v, ok := payload["compress_response_file"].(bool); ok {
		attrs.CompressResponseFile = v
	}
	if v, ok := numberValue(payload["response_size_limit_bytes"]); ok && v > 0 {
		attrs.ResponseSizeLimitBytes = v
	}
	if v, ok := payload["job_type"].(string); ok {
		attrs.JobType = v
	}
	if v, ok := payload["trace_id"].(string); ok && v != "" {
		attrs.TraceID = v
	}
	if attrs.TraceID == "" {
		attrs.TraceID = uuid.NewString()
	}
	return &attrs
}

func numberValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
