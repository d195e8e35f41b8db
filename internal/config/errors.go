package config

import "errors"

var (
	ErrLoad     = errors.New("load configuration")
	ErrSave     = errors.New("save configuration")
	ErrEmptyKey = errors.New("configuration key is empty")
)
