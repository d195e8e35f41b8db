package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/egress-agent/internal/config"
)

// UpgradeState — состояние удалённого обновления.
//
// Переходы: Running → ApplyingConfig → Restarting → Running.
type UpgradeState int

const (
	StateRunning UpgradeState = iota
	StateApplyingConfig
	StateRestarting
)

func (s UpgradeState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateApplyingConfig:
		return "applying_config"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// upgrader применяет параметры конфигурации и перезапускает агент.
// Одновременно выполняется не больше одного обновления.
type upgrader struct {
	config   *config.Manager
	platform Platform
	logger   *slog.Logger

	mu    sync.Mutex
	state UpgradeState
}

func newUpgrader(cm *config.Manager, platform Platform, logger *slog.Logger) *upgrader {
	if logger == nil {
		logger = slog.Default()
	}
	return &upgrader{
		config:   cm,
		platform: platform,
		logger:   logger,
	}
}

// State возвращает текущее состояние.
func (u *upgrader) State() UpgradeState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *upgrader) transition(from, to UpgradeState) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != from {
		return false
	}
	u.state = to
	return true
}

func (u *upgrader) reset() {
	u.mu.Lock()
	u.state = StateRunning
	u.mu.Unlock()
}

// Upgrade применяет parameters и вызывает перезапуск платформы.
// При запрете удалённых обновлений конфигурация не меняется и перезапуска нет.
func (u *upgrader) Upgrade(ctx context.Context, parameters map[string]any) error {
	if !u.config.GetBool(config.KeyIsRemoteUpgradable, config.DefaultIsRemoteUpgradable) {
		return ErrRemoteUpgradesDisabled
	}
	if !u.transition(StateRunning, StateApplyingConfig) {
		return ErrUpgradeInProgress
	}
	defer u.reset()

	if len(parameters) > 0 {
		u.logger.Info("applying configuration parameters", "count", len(parameters))
		if err := u.config.SetValues(ctx, parameters); err != nil {
			return fmt.Errorf("apply parameters: %w", err)
		}
	}

	u.transition(StateApplyingConfig, StateRestarting)
	if err := u.platform.Restart(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return nil
}
