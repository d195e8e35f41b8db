package events

import "errors"

var (
	// ErrMalformed — событие не удалось разобрать.
	ErrMalformed = errors.New("malformed event")

	// ErrAlreadyStarted — клиент уже запущен.
	ErrAlreadyStarted = errors.New("events client already started")
)
