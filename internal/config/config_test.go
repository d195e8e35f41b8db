package config

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

// --- Manager Tests ---

func TestManager_Defaults(t *testing.T) {
	m := NewInMemory(nil)

	if got := m.GetInt(KeyOpsRunnerThreadCount, DefaultOpsRunnerThreadCount); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := m.GetBool(KeyIsRemoteUpgradable, DefaultIsRemoteUpgradable); !got {
		t.Error("expected remote upgradable by default")
	}
	if got := m.GetString("missing", "def"); got != "def" {
		t.Errorf("expected def, got %s", got)
	}
	if len(m.All()) != 0 {
		t.Errorf("expected empty config, got %v", m.All())
	}
}

func TestManager_TypedGetters(t *testing.T) {
	m := NewInMemory(map[string]any{
		KeyAckIntervalSeconds:   10,
		KeyIsRemoteUpgradable:   false,
		KeyCompressResponseFile: "no",
		"broken_int":            "abc",
		"broken_bool":           "maybe",
	})

	if got := m.GetInt(KeyAckIntervalSeconds, 5); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
	if m.GetBool(KeyIsRemoteUpgradable, true) {
		t.Error("expected is_remote_upgradable=false")
	}
	if m.GetBool(KeyCompressResponseFile, true) {
		t.Error("expected compress_response_file=false")
	}
	if got := m.GetInt("broken_int", 7); got != 7 {
		t.Errorf("expected default 7 for broken int, got %d", got)
	}
	if !m.GetBool("broken_bool", true) {
		t.Error("expected default true for broken bool")
	}
}

func TestManager_SetValues(t *testing.T) {
	ctx := context.Background()
	persistence := NewMemoryPersistence(nil)
	m, err := New(ctx, Options{Persistence: persistence})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = m.SetValues(ctx, map[string]any{
		"foo":                  "bar",
		KeyPublisherThreadCount: 4,
		KeyIsRemoteUpgradable:  false,
		"ratio":                1.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := m.All()
	if all["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %v", all["foo"])
	}
	if all[KeyPublisherThreadCount] != "4" {
		t.Errorf("expected \"4\", got %q", all[KeyPublisherThreadCount])
	}
	if all[KeyIsRemoteUpgradable] != "false" {
		t.Errorf("expected \"false\", got %q", all[KeyIsRemoteUpgradable])
	}
	if all["ratio"] != "1.5" {
		t.Errorf("expected \"1.5\", got %q", all["ratio"])
	}

	saved, _ := persistence.Load(ctx)
	if saved["foo"] != "bar" {
		t.Errorf("expected values persisted, got %v", saved)
	}
}

func TestManager_SetValues_NestedAsJSON(t *testing.T) {
	ctx := context.Background()
	m := NewInMemory(nil)

	err := m.SetValues(ctx, map[string]any{
		"nested": map[string]any{"a": float64(1)},
		"list":   []any{"x", "y"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := m.All()
	if all["nested"] != `{"a":1}` {
		t.Errorf("expected nested as JSON, got %q", all["nested"])
	}
	if all["list"] != `["x","y"]` {
		t.Errorf("expected list as JSON, got %q", all["list"])
	}

	// значение читается обратно
	var nested map[string]any
	if err := json.Unmarshal([]byte(all["nested"]), &nested); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	if nested["a"] != float64(1) {
		t.Errorf("expected a=1, got %v", nested["a"])
	}
}

func TestManager_AllReturnsCopy(t *testing.T) {
	m := NewInMemory(map[string]any{"a": "1"})
	all := m.All()
	all["a"] = "2"

	if m.GetString("a", "") != "1" {
		t.Error("All() must return a copy")
	}
}

type failingPersistence struct{}

func (failingPersistence) Load(context.Context) (map[string]string, error) {
	return map[string]string{"a": "1"}, nil
}

func (failingPersistence) Save(context.Context, map[string]string) error {
	return errors.New("disk full")
}

func TestManager_SetValues_SaveFailureKeepsValues(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, Options{Persistence: failingPersistence{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = m.SetValues(ctx, map[string]any{"a": "2"})
	if !errors.Is(err, ErrSave) {
		t.Fatalf("expected ErrSave, got %v", err)
	}
	if m.GetString("a", "") != "1" {
		t.Error("values must not change when save fails")
	}
}

func TestManager_SetValues_EmptyKey(t *testing.T) {
	m := NewInMemory(nil)
	if err := m.SetValues(context.Background(), map[string]any{"": "x"}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestNew_InitialOverridesLoaded(t *testing.T) {
	ctx := context.Background()
	persistence := NewMemoryPersistence(map[string]string{"a": "1", "b": "2"})

	m, err := New(ctx, Options{Persistence: persistence, Initial: map[string]any{"b": 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.GetString("a", "") != "1" || m.GetInt("b", 0) != 3 {
		t.Errorf("unexpected values: %v", m.All())
	}
}

// --- FilePersistence Tests ---

func TestFilePersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "agent.json")
	p := NewFilePersistence(path)

	values, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load of missing file should not fail: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected empty values, got %v", values)
	}

	if err := p.Save(ctx, map[string]string{"foo": "bar"}); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	m, err := New(ctx, Options{Persistence: p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.GetString("foo", "") != "bar" {
		t.Errorf("expected foo=bar after reload, got %v", m.All())
	}
}
