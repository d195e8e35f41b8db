package repo

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisConfigKey = "egress-agent:config"

// RedisConfigStore хранит конфигурацию агента в Redis hash.
// Реализует config.Persistence.
type RedisConfigStore struct {
	client *redis.Client
	key    string
}

// NewRedisConfigStore создаёт хранилище по URL вида redis://host:port/db.
// Пустой key заменяется на "egress-agent:config".
func NewRedisConfigStore(url, key string) (*RedisConfigStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisConfigStoreWithClient(redis.NewClient(opts), key), nil
}

// NewRedisConfigStoreWithClient создаёт хранилище поверх готового клиента.
func NewRedisConfigStoreWithClient(client *redis.Client, key string) *RedisConfigStore {
	if key == "" {
		key = defaultRedisConfigKey
	}
	return &RedisConfigStore{client: client, key: key}
}

// Ping проверяет доступность Redis.
func (s *RedisConfigStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Load возвращает все поля hash.
func (s *RedisConfigStore) Load(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	return values, nil
}

// Save атомарно заменяет содержимое hash.
func (s *RedisConfigStore) Save(ctx context.Context, values map[string]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			fields := make(map[string]any, len(values))
			for k, v := range values {
				fields[k] = v
			}
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save config to redis: %w", err)
	}
	return nil
}

// Close закрывает клиент.
func (s *RedisConfigStore) Close() error {
	return s.client.Close()
}
