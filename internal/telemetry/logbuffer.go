package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultLogBufferSize = 10000

// LogBuffer — кольцевой буфер последних записей лога.
//
// Агент не имеет доступа к внешнему хранилищу логов, поэтому последние
// записи держатся в памяти и отдаются backend'у по запросу.
// Потокобезопасен.
type LogBuffer struct {
	mu       sync.Mutex
	entries  []map[string]any
	next     int
	full     bool
	capacity int
}

// NewLogBuffer создаёт буфер на capacity записей (default: 10000).
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = defaultLogBufferSize
	}
	return &LogBuffer{
		entries:  make([]map[string]any, capacity),
		capacity: capacity,
	}
}

// Add добавляет запись, вытесняя самую старую при переполнении.
func (b *LogBuffer) Add(entry map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % b.capacity
	if b.next == 0 {
		b.full = true
	}
}

// Len возвращает количество записей в буфере.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return b.capacity
	}
	return b.next
}

// GetLogs возвращает последние limit записей в хронологическом порядке.
func (b *LogBuffer) GetLogs(_ context.Context, limit int) ([]map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.next
	if b.full {
		size = b.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	logs := make([]map[string]any, 0, limit)
	start := (b.next - limit + b.capacity) % b.capacity
	for i := 0; i < limit; i++ {
		logs = append(logs, b.entries[(start+i)%b.capacity])
	}
	return logs, nil
}

// Handler возвращает slog.Handler, пишущий в буфер записи не ниже level.
func (b *LogBuffer) Handler(level slog.Leveler) slog.Handler {
	return &bufferHandler{buf: b, level: level}
}

type bufferHandler struct {
	buf    *LogBuffer
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func (h *bufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *bufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := map[string]any{
		"timestamp": r.Time.UTC().Format(time.RFC3339Nano),
		"level":     r.Level.String(),
		"message":   r.Message,
	}
	for _, a := range h.attrs {
		addAttr(entry, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(entry, h.prefix, a)
		return true
	})
	h.buf.Add(entry)
	return nil
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// addAttr раскладывает атрибут (включая группы) в плоский map.
func addAttr(entry map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(entry, groupPrefix, ga)
		}
		return
	}

	switch v := a.Value.Any().(type) {
	case error:
		entry[prefix+a.Key] = v.Error()
	case time.Duration:
		entry[prefix+a.Key] = v.String()
	case time.Time:
		entry[prefix+a.Key] = v.UTC().Format(time.RFC3339Nano)
	default:
		entry[prefix+a.Key] = v
	}
}
