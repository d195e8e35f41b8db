package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — объект не найден.
	ErrNotFound = errors.New("object not found")

	// ErrPermissions — нет прав на операцию с хранилищем.
	ErrPermissions = errors.New("storage permission denied")

	// ErrUnknownMethod — команда с неизвестным методом.
	ErrUnknownMethod = errors.New("unknown storage method")

	// ErrInvalidCommand — команда не разбирается или в ней нет обязательного аргумента.
	ErrInvalidCommand = errors.New("invalid storage command")
)

// Error — ошибка хранилища с типом для backend'а.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType возвращает тип ошибки: NotFoundError, PermissionsError или GenericError.
func (e *Error) ErrorType() string {
	return e.Kind
}

// classify оборачивает ошибку в *Error по её причине.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := "GenericError"
	switch {
	case errors.Is(err, ErrNotFound):
		kind = "NotFoundError"
	case errors.Is(err, ErrPermissions):
		kind = "PermissionsError"
	}
	return &Error{Kind: kind, Err: fmt.Errorf("%s: %w", op, err)}
}
