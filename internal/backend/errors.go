package backend

import (
	"errors"
	"fmt"
)

// ErrTransport — запрос не дошёл до backend'а или ответ не прочитан.
var ErrTransport = errors.New("backend transport error")

// StatusError — backend ответил кодом ошибки.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Code, e.Body)
}
