package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/egress-agent/internal/backend"
	"github.com/shaiso/egress-agent/internal/config"
	"github.com/shaiso/egress-agent/internal/results"
)

// EnvIsRemoteUpgradable — переменная env в health, которой другие платформы
// агента сообщают о возможности удалённого обновления.
const EnvIsRemoteUpgradable = "MCD_AGENT_IS_REMOTE_UPGRADABLE"

// HealthInformation возвращает сведения о версии, платформе и конфигурации агента.
func (o *Orchestrator) HealthInformation(traceID string) map[string]any {
	env := agentEnv()
	env["GO_VERSION"] = runtime.Version()
	if o.config.GetBool(config.KeyIsRemoteUpgradable, config.DefaultIsRemoteUpgradable) {
		env[EnvIsRemoteUpgradable] = "true"
	} else {
		env[EnvIsRemoteUpgradable] = "false"
	}

	info := map[string]any{
		"version":               o.version,
		"build":                 o.build,
		"platform":              o.platform.Name(),
		"env":                   env,
		"platform_info":         o.platform.Info(),
		"parameters":            o.config.All(),
		"authentication_key_id": o.keyID,
		"upgrade_state":         o.UpgradeState().String(),
	}
	if traceID != "" {
		info["trace_id"] = traceID
	}
	return info
}

// agentEnv возвращает переменные окружения MCD_*, кроме секретов.
func agentEnv() map[string]any {
	env := make(map[string]any)
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, "MCD_") {
			continue
		}
		upper := strings.ToUpper(name)
		if strings.Contains(upper, "TOKEN") || strings.Contains(upper, "SECRET") || strings.Contains(upper, "PASSWORD") {
			continue
		}
		env[name] = value
	}
	return env
}

// RunReachabilityTest проверяет связь с backend'ом и возвращает его ответ.
// Пустой traceID заменяется новым UUID.
func (o *Orchestrator) RunReachabilityTest(ctx context.Context, traceID string) (map[string]any, error) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	o.logger.Info("running reachability test", "trace_id", traceID)

	resp, err := o.backend.ExecuteOperation(ctx, backend.PathPing+"?trace_id="+url.QueryEscape(traceID), http.MethodGet, nil)
	if err != nil {
		return nil, fmt.Errorf("reachability test: %w", err)
	}
	return resp, nil
}

// QueryCompleted ставит в очередь публикацию результата запроса,
// выполненного вне агента. operationJSON — атрибуты операции.
func (o *Orchestrator) QueryCompleted(ctx context.Context, operationJSON []byte, queryID string) error {
	attrs, err := results.ParseAttributes(operationJSON)
	if err != nil {
		return err
	}
	if attrs.OperationID == "" {
		return fmt.Errorf("%w: operation_id is missing", ErrInvalidQueryCompletion)
	}
	if queryID == "" {
		return fmt.Errorf("%w: query_id is missing", ErrInvalidQueryCompletion)
	}

	o.logger.Info("query completed", "operation_id", attrs.OperationID, "query_id", queryID)
	return o.publisher.ScheduleQueryResults(ctx, attrs.OperationID, queryID, attrs)
}
