package runner

// Operation — операция, поставленная в очередь runner'а.
//
// Event — исходное событие (или производное после загрузки payload).
// Не изменяется после постановки в очередь.
type Operation struct {
	ID    string
	Event map[string]any

	// Synthetic — операция, поставленная самим агентом (push_logs, push_metrics).
	// Для неё не отправляется ack и не публикуется результат.
	Synthetic bool
}

// Path возвращает путь операции из события.
func (o Operation) Path() string {
	if o.Event == nil {
		return ""
	}
	path, _ := o.Event["path"].(string)
	return path
}

// Payload возвращает тело операции (поле "operation" события).
// Отсутствующее тело — пустой map.
func (o Operation) Payload() map[string]any {
	if o.Event == nil {
		return map[string]any{}
	}
	payload, ok := o.Event["operation"].(map[string]any)
	if !ok || payload == nil {
		return map[string]any{}
	}
	return payload
}

// TraceID возвращает operation.trace_id, если он задан, иначе ID операции.
func (o Operation) TraceID() string {
	if traceID, ok := o.Payload()["trace_id"].(string); ok && traceID != "" {
		return traceID
	}
	return o.ID
}
