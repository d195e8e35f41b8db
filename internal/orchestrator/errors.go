package orchestrator

import "errors"

// ErrorTypeAgent — тип ошибок агента в __mcd_error_type__.
const ErrorTypeAgent = "EgressAgentError"

// AgentError — ошибка агента, передаваемая backend'у с типом EgressAgentError.
type AgentError struct {
	msg string
}

func (e *AgentError) Error() string     { return e.msg }
func (e *AgentError) ErrorType() string { return ErrorTypeAgent }

// Ошибки оркестратора.
var (
	// ErrRemoteUpgradesDisabled — удалённое обновление запрещено конфигурацией.
	ErrRemoteUpgradesDisabled error = &AgentError{msg: "Remote upgrades are disabled"}

	// ErrUpgradeInProgress — обновление уже выполняется.
	ErrUpgradeInProgress = errors.New("upgrade already in progress")

	// ErrUnsupportedPath — путь операции не сопоставлен обработчику.
	ErrUnsupportedPath = errors.New("unsupported operation path")

	// ErrHandlerPanic — обработчик операции запаниковал.
	ErrHandlerPanic = errors.New("operation handler panicked")

	// ErrNoStorage — хранилище не настроено.
	ErrNoStorage = errors.New("storage is not configured")

	// ErrInvalidQueryCompletion — в уведомлении о завершении запроса нет operation_id.
	ErrInvalidQueryCompletion = errors.New("invalid query completion")
)
