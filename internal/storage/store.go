package storage

import (
	"context"
	"time"
)

// Object — элемент листинга.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListOptions — параметры листинга.
type ListOptions struct {
	Prefix            string
	Delimiter         string
	BatchSize         int
	ContinuationToken string
}

// ListResult — страница листинга.
// При заданном Delimiter заполняется Prefixes вместо Objects.
type ListResult struct {
	Objects           []Object `json:"objects,omitempty"`
	Prefixes          []string `json:"prefixes,omitempty"`
	ContinuationToken string   `json:"continuation_token,omitempty"`
}

// Store — хранилище объектов агента.
type Store interface {
	Write(ctx context.Context, key string, body []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
	IsBucketPrivate(ctx context.Context) (bool, error)
}
