package repo

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConfigRepo хранит конфигурацию агента в таблице agent_config.
// Реализует config.Persistence.
type ConfigRepo struct {
	pool *pgxpool.Pool
}

// NewConfigRepo создаёт ConfigRepo.
func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

// Load возвращает все сохранённые значения.
func (r *ConfigRepo) Load(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM agent_config`)
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config rows: %w", err)
	}
	return values, nil
}

// Save заменяет сохранённый набор значений в одной транзакции.
func (r *ConfigRepo) Save(ctx context.Context, values map[string]string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, key := range slices.Sorted(maps.Keys(values)) {
		batch.Queue(`
			INSERT INTO agent_config (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		`, key, values[key])
	}
	batch.Queue(`DELETE FROM agent_config WHERE NOT (key = ANY($1))`, slices.Collect(maps.Keys(values)))

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit config: %w", err)
	}
	return nil
}
