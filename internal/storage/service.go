package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/shaiso/egress-agent/internal/results"
)

const defaultPresignExpiration = time.Hour

// Command — одна команда операции хранилища.
type Command struct {
	Method string         `json:"method"`
	Kwargs map[string]any `json:"kwargs"`
}

// Service выполняет операции хранилища и выгружает большие результаты.
type Service struct {
	store      Store
	expiration time.Duration
	logger     *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	Store Store

	// PresignExpiration — срок жизни ссылки на выгруженный результат (default: 1h).
	PresignExpiration time.Duration

	Logger *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	expiration := cfg.PresignExpiration
	if expiration <= 0 {
		expiration = defaultPresignExpiration
	}
	return &Service{store: cfg.Store, expiration: expiration, logger: logger}
}

// Upload сохраняет тело и возвращает presigned URL на него.
func (s *Service) Upload(ctx context.Context, key string, body []byte) (string, error) {
	if err := s.store.Write(ctx, key, body); err != nil {
		return "", classify("write", err)
	}
	url, err := s.store.PresignedURL(ctx, key, s.expiration)
	if err != nil {
		return "", classify("generate presigned url", err)
	}
	return url, nil
}

// ExecuteOperation выполняет команды из тела операции по порядку
// и возвращает результат последней в __mcd_result__.
//
// Формат: {"commands": [{"method": "read", "kwargs": {"key": "..."}}]}
func (s *Service) ExecuteOperation(ctx context.Context, payload map[string]any) (map[string]any, error) {
	commands, err := parseCommands(payload)
	if err != nil {
		return nil, err
	}

	var last any
	for _, cmd := range commands {
		s.logger.Debug("executing storage command", "method", cmd.Method)
		last, err = s.execute(ctx, cmd)
		if err != nil {
			return nil, err
		}
	}
	return map[string]any{results.AttrResult: last}, nil
}

func (s *Service) execute(ctx context.Context, cmd Command) (any, error) {
	args := kwargs(cmd.Kwargs)

	switch cmd.Method {
	case "write":
		key, err := args.requiredString("key")
		if err != nil {
			return nil, err
		}
		body, err := args.body("obj_to_write")
		if err != nil {
			return nil, err
		}
		return nil, classify("write", s.store.Write(ctx, key, body))

	case "read":
		key, err := args.requiredString("key")
		if err != nil {
			return nil, err
		}
		data, err := s.store.Read(ctx, key)
		if err != nil {
			return nil, classify("read", err)
		}
		if args.flag("decompress") && isGzip(data) {
			if data, err = gunzip(data); err != nil {
				return nil, classify("read", err)
			}
		}
		if args.str("encoding") != "" {
			return string(data), nil
		}
		return data, nil

	case "delete":
		key, err := args.requiredString("key")
		if err != nil {
			return nil, err
		}
		return nil, classify("delete", s.store.Delete(ctx, key))

	case "list_objects":
		res, err := s.store.List(ctx, ListOptions{
			Prefix:            args.str("prefix"),
			Delimiter:         args.str("delimiter"),
			BatchSize:         args.number("batch_size"),
			ContinuationToken: args.str("continuation_token"),
		})
		if err != nil {
			return nil, classify("list objects", err)
		}
		return res, nil

	case "generate_presigned_url":
		key, err := args.requiredString("key")
		if err != nil {
			return nil, err
		}
		expiration := s.expiration
		if secs := args.number("expiration"); secs > 0 {
			expiration = time.Duration(secs) * time.Second
		}
		url, err := s.store.PresignedURL(ctx, key, expiration)
		if err != nil {
			return nil, classify("generate presigned url", err)
		}
		return url, nil

	case "is_bucket_private":
		private, err := s.store.IsBucketPrivate(ctx)
		if err != nil {
			return nil, classify("is bucket private", err)
		}
		return private, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cmd.Method)
	}
}

func parseCommands(payload map[string]any) ([]Command, error) {
	raw, ok := payload["commands"]
	if !ok {
		return nil, fmt.Errorf("%w: commands are missing", ErrInvalidCommand)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	var commands []Command
	if err := json.Unmarshal(data, &commands); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if len(commands) == 0 {
		return nil, fmt.Errorf("%w: commands are empty", ErrInvalidCommand)
	}
	return commands, nil
}

type kwargs map[string]any

func (k kwargs) str(name string) string {
	v, _ := k[name].(string)
	return v
}

func (k kwargs) requiredString(name string) (string, error) {
	v := k.str(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidCommand, name)
	}
	return v, nil
}

func (k kwargs) flag(name string) bool {
	v, _ := k[name].(bool)
	return v
}

func (k kwargs) number(name string) int {
	switch v := k[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// body возвращает тело для записи: строку как есть, остальное — JSON.
func (k kwargs) body(name string) ([]byte, error) {
	v, ok := k[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidCommand, name)
	}
	switch b := v.(type) {
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		return data, nil
	}
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
