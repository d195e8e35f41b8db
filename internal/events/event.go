package events

import (
	"encoding/json"
	"fmt"
)

// Event — декодированное событие от backend'а.
//
// Операция: {"operation_id": ..., "path": ..., "operation": {...}}.
// Управляющее событие: {"type": "push_metrics"}.
type Event struct {
	OperationID string
	Path        string
	Operation   map[string]any
	Type        string

	// Raw — исходный JSON объект события.
	Raw map[string]any
}

// Управляющие события.
const (
	TypePushMetrics = "push_metrics"
)

// IsOperation сообщает, несёт ли событие операцию.
func (e Event) IsOperation() bool {
	return e.OperationID != ""
}

// Decode разбирает событие. Событие без operation_id и без type — ErrMalformed.
func Decode(data []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return Event{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	ev := Event{Raw: raw}
	ev.OperationID, _ = raw["operation_id"].(string)
	ev.Path, _ = raw["path"].(string)
	ev.Type, _ = raw["type"].(string)

	if op, ok := raw["operation"].(map[string]any); ok {
		ev.Operation = op
	} else if _, present := raw["operation"]; present && raw["operation"] != nil {
		return Event{}, fmt.Errorf("%w: operation must be an object", ErrMalformed)
	}

	if ev.OperationID == "" && ev.Type == "" {
		return Event{}, fmt.Errorf("%w: neither operation_id nor type", ErrMalformed)
	}
	return ev, nil
}
