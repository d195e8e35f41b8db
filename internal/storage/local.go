package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// LocalStore — Store на локальной файловой системе.
// Presigned URL — file:// ссылка на файл; bucket всегда приватный.
type LocalStore struct {
	basePath string
}

// NewLocalStore создаёт LocalStore, создавая базовый каталог при необходимости.
func NewLocalStore(basePath string) (*LocalStore, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(key))
	if full != s.basePath && !strings.HasPrefix(full, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: key %q escapes storage root", ErrPermissions, key)
	}
	return full, nil
}

func (s *LocalStore) Write(_ context.Context, key string, body []byte) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return os.WriteFile(full, body, 0o644)
}

func (s *LocalStore) Read(_ context.Context, key string) ([]byte, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// List возвращает объекты с префиксом в лексикографическом порядке.
// ContinuationToken — последний ключ предыдущей страницы.
func (s *LocalStore) List(_ context.Context, opts ListOptions) (ListResult, error) {
	var objects []Object
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("walk storage: %w", err)
	}

	slices.SortFunc(objects, func(a, b Object) int { return strings.Compare(a.Key, b.Key) })

	if opts.ContinuationToken != "" {
		idx := 0
		for idx < len(objects) && objects[idx].Key <= opts.ContinuationToken {
			idx++
		}
		objects = objects[idx:]
	}

	if opts.Delimiter != "" {
		var prefixes []string
		for _, o := range objects {
			rest := strings.TrimPrefix(o.Key, opts.Prefix)
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				p := opts.Prefix + rest[:i+len(opts.Delimiter)]
				if len(prefixes) == 0 || prefixes[len(prefixes)-1] != p {
					prefixes = append(prefixes, p)
				}
			}
		}
		return ListResult{Prefixes: prefixes}, nil
	}

	res := ListResult{Objects: objects}
	if opts.BatchSize > 0 && len(objects) > opts.BatchSize {
		res.Objects = objects[:opts.BatchSize]
		res.ContinuationToken = res.Objects[opts.BatchSize-1].Key
	}
	return res, nil
}

func (s *LocalStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	full, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return "file://" + filepath.ToSlash(full), nil
}

func (s *LocalStore) IsBucketPrivate(context.Context) (bool, error) {
	return true, nil
}
