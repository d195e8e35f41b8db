package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LogsRepo читает логи агента из таблицы agent_logs.
//
// Используется как источник для get_logs / push_logs, когда логи
// собираются внешним шиппером в Postgres, а не в памяти процесса.
type LogsRepo struct {
	pool *pgxpool.Pool
}

// NewLogsRepo создаёт LogsRepo.
func NewLogsRepo(pool *pgxpool.Pool) *LogsRepo {
	return &LogsRepo{pool: pool}
}

// GetLogs возвращает последние limit записей в хронологическом порядке.
func (r *LogsRepo) GetLogs(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT logged_at, level, message, attrs
		FROM agent_logs
		ORDER BY logged_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	logs := make([]map[string]any, 0, limit)
	for rows.Next() {
		var (
			loggedAt time.Time
			level    string
			message  string
			attrs    []byte
		)
		if err := rows.Scan(&loggedAt, &level, &message, &attrs); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}

		entry := map[string]any{}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &entry); err != nil {
				return nil, fmt.Errorf("decode log attrs: %w", err)
			}
		}
		entry["timestamp"] = loggedAt.UTC().Format(time.RFC3339Nano)
		entry["level"] = level
		entry["message"] = message
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log rows: %w", err)
	}

	slices.Reverse(logs)
	return logs, nil
}
