package router

import (
	"slices"
	"strings"
)

// Kind — тип операции, определяющий обработчик.
type Kind int

const (
	KindStorageExecute Kind = iota + 1
	KindHealth
	KindGetLogs
	KindGetMetrics
	KindPushMetrics
	KindPushLogs
	KindUpgrade
)

func (k Kind) String() string {
	switch k {
	case KindStorageExecute:
		return "storage_execute"
	case KindHealth:
		return "health"
	case KindGetLogs:
		return "get_logs"
	case KindGetMetrics:
		return "get_metrics"
	case KindPushMetrics:
		return "push_metrics"
	case KindPushLogs:
		return "push_logs"
	case KindUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// MatchType — способ сравнения пути операции с маршрутом.
type MatchType int

const (
	// MatchEquals — точное совпадение.
	MatchEquals MatchType = iota
	// MatchStartsWith — совпадение по префиксу.
	MatchStartsWith
)

// Пути операций.
const (
	PathStorageExecute = "/api/v1/agent/execute/storage"
	PathHealth         = "/api/v1/test/health"
	PathGetLogs        = "/api/v1/snowflake/logs"
	PathGetMetrics     = "/api/v1/snowflake/metrics"
	PathPushMetrics    = "push_metrics"
	PathPushLogs       = "push_logs"
	PathUpgrade        = "/api/v1/upgrade"
)

// Mapping связывает путь с обработчиком.
type Mapping[H any] struct {
	Path  string
	Kind  Kind
	Match MatchType

	// Schedule — выполнять в пуле runner'а (true) или синхронно в потоке приёма событий.
	Schedule bool

	Handler H
}

// Matches проверяет, подходит ли path под маршрут.
func (m Mapping[H]) Matches(path string) bool {
	if m.Match == MatchStartsWith {
		return strings.HasPrefix(path, m.Path)
	}
	return path == m.Path
}

// Router — неизменяемая таблица маршрутов; побеждает первое совпадение.
type Router[H any] struct {
	mappings []Mapping[H]
}

// New создаёт Router из таблицы маршрутов в порядке приоритета.
func New[H any](mappings ...Mapping[H]) *Router[H] {
	return &Router[H]{mappings: append([]Mapping[H](nil), mappings...)}
}

// Resolve возвращает первый маршрут, подходящий под path.
func (r *Router[H]) Resolve(path string) (Mapping[H], bool) {
	for _, m := range r.mappings {
		if m.Matches(path) {
			return m, true
		}
	}
	var zero Mapping[H]
	return zero, false
}

// Inline возвращает копию Router, в которой операции kinds выполняются
// синхронно в потоке приёма событий.
func (r *Router[H]) Inline(kinds ...Kind) *Router[H] {
	next := New(r.mappings...)
	for i := range next.mappings {
		if slices.Contains(kinds, next.mappings[i].Kind) {
			next.mappings[i].Schedule = false
		}
	}
	return next
}

// Default строит стандартную таблицу агента, подставляя обработчик для каждого Kind.
// Kind без обработчика получает нулевое значение H.
func Default[H any](handlers map[Kind]H) *Router[H] {
	return New(
		Mapping[H]{Path: PathStorageExecute, Kind: KindStorageExecute, Match: MatchStartsWith, Schedule: true, Handler: handlers[KindStorageExecute]},
		Mapping[H]{Path: PathHealth, Kind: KindHealth, Schedule: true, Handler: handlers[KindHealth]},
		Mapping[H]{Path: PathGetLogs, Kind: KindGetLogs, Schedule: true, Handler: handlers[KindGetLogs]},
		Mapping[H]{Path: PathGetMetrics, Kind: KindGetMetrics, Schedule: true, Handler: handlers[KindGetMetrics]},
		Mapping[H]{Path: PathPushMetrics, Kind: KindPushMetrics, Schedule: true, Handler: handlers[KindPushMetrics]},
		Mapping[H]{Path: PathPushLogs, Kind: KindPushLogs, Schedule: true, Handler: handlers[KindPushLogs]},
		Mapping[H]{Path: PathUpgrade, Kind: KindUpgrade, Schedule: true, Handler: handlers[KindUpgrade]},
	)
}
