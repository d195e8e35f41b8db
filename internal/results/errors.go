package results

import "errors"

var (
	// ErrInvalidAttributes — атрибуты операции не разбираются.
	ErrInvalidAttributes = errors.New("invalid operation attributes")

	// ErrNoUploader — результат превысил лимит, но хранилище для выгрузки не настроено.
	ErrNoUploader = errors.New("result exceeds size limit and no storage is configured")

	// ErrStopped — publisher остановлен.
	ErrStopped = errors.New("results publisher stopped")
)
