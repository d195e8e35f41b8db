package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// MemoryPersistence хранит значения в памяти процесса.
type MemoryPersistence struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryPersistence создаёт хранилище с начальными значениями.
func NewMemoryPersistence(initial map[string]string) *MemoryPersistence {
	return &MemoryPersistence{values: maps.Clone(initial)}
}

func (p *MemoryPersistence) Load(context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.values), nil
}

func (p *MemoryPersistence) Save(_ context.Context, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = maps.Clone(values)
	return nil
}

// FilePersistence хранит значения в JSON файле.
// Запись атомарна: сначала во временный файл, затем rename.
type FilePersistence struct {
	path string
}

// NewFilePersistence создаёт файловое хранилище.
func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{path: path}
}

func (p *FilePersistence) Load(context.Context) (map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}

	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}
	return values, nil
}

func (p *FilePersistence) Save(_ context.Context, values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
