package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/egress-agent/internal/backend"
	"github.com/shaiso/egress-agent/internal/config"
	"github.com/shaiso/egress-agent/internal/events"
	"github.com/shaiso/egress-agent/internal/mq"
	"github.com/shaiso/egress-agent/internal/orchestrator"
	"github.com/shaiso/egress-agent/internal/repo"
	"github.com/shaiso/egress-agent/internal/storage"
	"github.com/shaiso/egress-agent/internal/telemetry"
)

// Version и Build задаются через ldflags при сборке.
var (
	Version = "dev"
	Build   = "0"
)

// ErrUnknownOption — недопустимое значение настройки.
var ErrUnknownOption = errors.New("unknown option")

// Agent — собранный агент и ресурсы, которые нужно закрыть.
type Agent struct {
	Orchestrator *orchestrator.Orchestrator
	Config       *config.Manager
	Metrics      *telemetry.Metrics

	closers []func()
}

// Close освобождает ресурсы в обратном порядке.
func (a *Agent) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// AgentOptions — зависимости сборки, не задаваемые Settings.
type AgentOptions struct {
	Logger *slog.Logger

	// Logs — буфер логов процесса для LOGS_SOURCE=buffer.
	Logs *telemetry.LogBuffer

	// Restart — перезапуск агента после удалённого обновления.
	Restart orchestrator.RestartFunc

	// WithoutReceiver — не подключать источник событий (одноразовые команды).
	WithoutReceiver bool
}

// builder хранит общие ресурсы на время сборки.
type builder struct {
	settings Settings
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	agent    *Agent
	pool     *pgxpool.Pool
}

// BuildAgent собирает агент по настройкам. При ошибке уже открытые
// ресурсы закрываются.
func BuildAgent(ctx context.Context, s Settings, opts AgentOptions) (_ *Agent, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &builder{
		settings: s,
		logger:   logger,
		metrics:  telemetry.NewMetrics(),
		agent:    &Agent{},
	}
	b.agent.Metrics = b.metrics
	defer func() {
		if err != nil {
			b.agent.Close()
		}
	}()

	persistence, err := b.persistence(ctx)
	if err != nil {
		return nil, err
	}
	cm, err := config.New(ctx, config.Options{Persistence: persistence, Logger: logger})
	if err != nil {
		return nil, err
	}
	b.agent.Config = cm

	client := backend.NewHTTPClient(backend.Config{
		BaseURL: s.BackendURL,
		AgentID: s.AgentID,
		Token:   s.Token,
		Logger:  logger,
	})

	var receiver events.Receiver
	if !opts.WithoutReceiver {
		if receiver, err = b.receiver(ctx, client); err != nil {
			return nil, err
		}
	}

	store, err := b.storage(ctx)
	if err != nil {
		return nil, err
	}

	var logs orchestrator.LogsSource
	switch s.LogsSource {
	case "buffer", "":
		if opts.Logs != nil {
			logs = opts.Logs
		}
	case "postgres":
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		logs = repo.NewLogsRepo(pool)
	default:
		return nil, fmt.Errorf("%w: logs source %q", ErrUnknownOption, s.LogsSource)
	}

	platform := orchestrator.NewGenericPlatform(s.Platform, map[string]any{
		"receiver":     s.Receiver,
		"config_store": s.ConfigStore,
		"storage":      s.Storage,
		"logs_source":  s.LogsSource,
	}, opts.Restart, logger)

	b.agent.Orchestrator = orchestrator.New(orchestrator.Config{
		Backend:             client,
		Receiver:            receiver,
		Config:              cm,
		Storage:             store,
		Logs:                logs,
		Platform:            platform,
		Version:             Version,
		Build:               Build,
		AuthenticationKeyID: s.AgentID,
		Metrics:             b.metrics,
		Logger:              logger,
	})
	return b.agent, nil
}

func (b *builder) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := repo.NewPool(ctx, b.settings.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	b.agent.closers = append(b.agent.closers, pool.Close)

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	b.pool = pool
	return pool, nil
}

func (b *builder) persistence(ctx context.Context) (config.Persistence, error) {
	switch b.settings.ConfigStore {
	case "memory":
		return config.NewMemoryPersistence(nil), nil
	case "file", "":
		return config.NewFilePersistence(b.settings.ConfigPath), nil
	case "postgres":
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return repo.NewConfigRepo(pool), nil
	case "redis":
		store, err := repo.NewRedisConfigStore(b.settings.RedisURL, b.settings.RedisKey)
		if err != nil {
			return nil, err
		}
		b.agent.closers = append(b.agent.closers, func() { _ = store.Close() })
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: config store %q", ErrUnknownOption, b.settings.ConfigStore)
	}
}

func (b *builder) receiver(ctx context.Context, client *backend.HTTPClient) (events.Receiver, error) {
	switch b.settings.Receiver {
	case "sse", "":
		return events.NewSSEReceiver(events.SSEConfig{
			Opener:  client,
			Metrics: b.metrics,
			Logger:  b.logger,
		}), nil
	case "amqp":
		conn, err := mq.Dial(mq.ConnectionConfig{
			URL:                b.settings.AMQPURL,
			Logger:             b.logger,
			OnReconnectAttempt: func() { b.metrics.Reconnect("amqp") },
		})
		if err != nil {
			return nil, err
		}
		b.agent.closers = append(b.agent.closers, func() { _ = conn.Close() })

		if err := mq.SetupTopology(ctx, conn); err != nil {
			return nil, err
		}
		consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
			Queue:  b.settings.AMQPQueue,
			Logger: b.logger,
		})
		return events.NewAMQPReceiver(consumer, b.logger), nil
	default:
		return nil, fmt.Errorf("%w: receiver %q", ErrUnknownOption, b.settings.Receiver)
	}
}

func (b *builder) storage(ctx context.Context) (*storage.Service, error) {
	var store storage.Store
	switch b.settings.Storage {
	case "none", "":
		return nil, nil
	case "local":
		local, err := storage.NewLocalStore(b.settings.StoragePath)
		if err != nil {
			return nil, err
		}
		store = local
	case "s3":
		s3, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:   b.settings.S3Bucket,
			Region:   b.settings.S3Region,
			Endpoint: b.settings.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		store = s3
	default:
		return nil, fmt.Errorf("%w: storage %q", ErrUnknownOption, b.settings.Storage)
	}

	return storage.New(storage.Config{
		Store:             store,
		PresignExpiration: b.settings.PresignExpiration,
		Logger:            b.logger,
	}), nil
}
