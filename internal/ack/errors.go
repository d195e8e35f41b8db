package ack

import "errors"

// ErrFlushIncomplete — часть ack'ов не отправлена, они повторятся на следующем тике.
var ErrFlushIncomplete = errors.New("some acks were not sent")
