package repo

import "errors"

var (
	// ErrInvalidLimit — неположительный лимит выборки.
	ErrInvalidLimit = errors.New("invalid limit")
)
