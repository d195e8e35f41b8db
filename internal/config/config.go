package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
)

// Ключи runtime-конфигурации агента.
const (
	KeyOpsRunnerThreadCount    = "ops_runner_thread_count"
	KeyPublisherThreadCount    = "publisher_thread_count"
	KeyIsRemoteUpgradable      = "is_remote_upgradable"
	KeyAckIntervalSeconds      = "ack_interval_seconds"
	KeyPushLogsIntervalSeconds = "push_logs_interval_seconds"
	KeyResponseSizeLimitBytes  = "response_size_limit_bytes"
	KeyCompressResponseFile    = "compress_response_file"
	KeyLogsFetchLimit          = "logs_fetch_limit"
)

// Значения по умолчанию.
const (
	DefaultOpsRunnerThreadCount    = 1
	DefaultPublisherThreadCount    = 1
	DefaultIsRemoteUpgradable      = true
	DefaultAckIntervalSeconds      = 5
	DefaultPushLogsIntervalSeconds = 300
	DefaultResponseSizeLimitBytes  = 20_000_000
	DefaultCompressResponseFile    = true
	DefaultLogsFetchLimit          = 1000
)

// Persistence — хранилище значений конфигурации.
type Persistence interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
}

// Manager — потокобезопасное key/value хранилище конфигурации агента.
//
// Значения хранятся строками; типизированные геттеры парсят их
// и возвращают default при отсутствии ключа или ошибке разбора.
type Manager struct {
	mu          sync.RWMutex
	values      map[string]string
	persistence Persistence
	logger      *slog.Logger
}

// Options — параметры Manager.
type Options struct {
	// Persistence — хранилище (default: MemoryPersistence).
	Persistence Persistence

	// Initial — значения, применяемые поверх загруженных (например, из флагов CLI).
	Initial map[string]any

	Logger *slog.Logger
}

// New создаёт Manager и загружает сохранённые значения.
func New(ctx context.Context, opts Options) (*Manager, error) {
	persistence := opts.Persistence
	if persistence == nil {
		persistence = NewMemoryPersistence(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loaded, err := persistence.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	values := make(map[string]string, len(loaded)+len(opts.Initial))
	maps.Copy(values, loaded)
	for k, v := range opts.Initial {
		values[k] = Normalize(v)
	}

	return &Manager{
		values:      values,
		persistence: persistence,
		logger:      logger,
	}, nil
}

// NewInMemory создаёт Manager без внешнего хранилища.
func NewInMemory(initial map[string]any) *Manager {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = Normalize(v)
	}
	return &Manager{
		values:      values,
		persistence: NewMemoryPersistence(nil),
		logger:      slog.Default(),
	}
}

// GetString возвращает значение key или def.
func (m *Manager) GetString(key, def string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// GetInt возвращает целое значение key или def.
func (m *Manager) GetInt(key string, def int) int {
	raw := m.GetString(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		m.logger.Warn("invalid integer config value", "key", key, "value", raw)
		return def
	}
	return v
}

// GetBool возвращает булево значение key или def.
func (m *Manager) GetBool(key string, def bool) bool {
	raw := m.GetString(key, "")
	if raw == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		m.logger.Warn("invalid boolean config value", "key", key, "value", raw)
		return def
	}
}

// All возвращает копию всех значений.
func (m *Manager) All() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// SetValues применяет values и сохраняет полный набор в хранилище.
// Если сохранение не удалось, значения в памяти не меняются.
func (m *Manager) SetValues(ctx context.Context, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := maps.Clone(m.values)
	if next == nil {
		next = make(map[string]string, len(values))
	}
	for k, v := range values {
		if strings.TrimSpace(k) == "" {
			return ErrEmptyKey
		}
		next[k] = Normalize(v)
	}

	if err := m.persistence.Save(ctx, next); err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}

	m.values = next
	m.logger.Info("configuration updated", "keys", len(values))
	return nil
}

// Normalize приводит значение к строке хранения. Map и срезы
// сериализуются в JSON.
func Normalize(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any, []any, map[string]string, []string:
		// вложенные значения хранятся как JSON
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
