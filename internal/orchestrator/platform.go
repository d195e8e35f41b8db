package orchestrator

import (
	"context"
	"log/slog"
	"maps"
)

// Platform — среда, в которой запущен агент.
type Platform interface {
	Name() string
	Info() map[string]any
	Restart(ctx context.Context) error
}

// RestartFunc перезапускает агент.
type RestartFunc func(ctx context.Context) error

// GenericPlatform — Platform без привязки к облаку.
// Без RestartFunc перезапуск только логируется.
type GenericPlatform struct {
	name    string
	info    map[string]any
	restart RestartFunc
	logger  *slog.Logger
}

// NewGenericPlatform создаёт GenericPlatform.
func NewGenericPlatform(name string, info map[string]any, restart RestartFunc, logger *slog.Logger) *GenericPlatform {
	if name == "" {
		name = "generic"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenericPlatform{
		name:    name,
		info:    maps.Clone(info),
		restart: restart,
		logger:  logger,
	}
}

func (p *GenericPlatform) Name() string { return p.name }

func (p *GenericPlatform) Info() map[string]any {
	out := maps.Clone(p.info)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func (p *GenericPlatform) Restart(ctx context.Context) error {
	if p.restart == nil {
		p.logger.Error("restart service not implemented", "platform", p.name)
		return nil
	}
	p.logger.Info("restarting service", "platform", p.name)
	return p.restart(ctx)
}
