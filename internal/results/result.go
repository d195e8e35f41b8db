package results

import (
	"errors"
	"maps"
)

// AgentOperationResult — результат операции, ожидающий публикации.
// Задаётся либо Result, либо QueryID.
type AgentOperationResult struct {
	OperationID string
	Result      map[string]any
	QueryID     string
	Attrs       *OperationAttributes
}

// TypedError — ошибка с типом, передаваемым backend'у в __mcd_error_type__.
type TypedError interface {
	error
	ErrorType() string
}

// AttributedError — ошибка с дополнительными атрибутами (__mcd_error_attrs__).
type AttributedError interface {
	error
	ErrorAttrs() map[string]any
}

// ForError строит результат-ошибку.
func ForError(err error) map[string]any {
	result := map[string]any{AttrError: err.Error()}

	var typed TypedError
	if errors.As(err, &typed) {
		result[AttrErrorType] = typed.ErrorType()
	}

	var attributed AttributedError
	if errors.As(err, &attributed) {
		if attrs := attributed.ErrorAttrs(); len(attrs) > 0 {
			result[AttrErrorAttrs] = maps.Clone(attrs)
		}
	}
	return result
}

// ForErrorMessage строит результат-ошибку из текста.
func ForErrorMessage(msg string) map[string]any {
	return map[string]any{AttrError: msg}
}

// WithTraceID возвращает копию result с __mcd_trace_id__.
// Уже заданный trace id не перезаписывается.
func WithTraceID(result map[string]any, traceID string) map[string]any {
	out := maps.Clone(result)
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out[AttrTraceID]; !ok && traceID != "" {
		out[AttrTraceID] = traceID
	}
	return out
}

// IsError сообщает, является ли result результатом-ошибкой.
func IsError(result map[string]any) bool {
	_, ok := result[AttrError]
	return ok
}
