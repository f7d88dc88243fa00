package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestRegistryStore(t *testing.T) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		dir := t.TempDir()
		store := NewRegistryStore(filepath.Join(dir, "nested", "registry.json"))

		sections := map[string]map[string]string{
			"rta":      {"token": "abc", "user": "bob"},
			"settings": {"theme": "dark"},
		}
		if err := store.Save(sections); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !reflect.DeepEqual(got, sections) {
			t.Errorf("Load() = %v, want %v", got, sections)
		}
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewRegistryStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("FileFormat", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.json")
		store := NewRegistryStore(path)
		saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return saved }

		if err := store.Save(map[string]map[string]string{"a": {"k": "v"}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		var state RegistryState
		if err := json.Unmarshal(data, &state); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if state.Version != StateVersion {
			t.Errorf("Version = %d, want %d", state.Version, StateVersion)
		}
		if !state.SavedAt.Equal(saved) {
			t.Errorf("SavedAt = %v, want %v", state.SavedAt, saved)
		}
	})

	t.Run("NewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.json")
		if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewRegistryStore(path).Load(); err == nil {
			t.Error("Load() should reject a newer file version")
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.json")
		if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewRegistryStore(path).Load(); err == nil {
			t.Error("Load() should fail on corrupt file")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.json")
		store := NewRegistryStore(path)
		if err := store.Save(map[string]map[string]string{"a": {"k": "v"}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("file still exists after Clear()")
		}
		// Clearing again is not an error.
		if err := store.Clear(); err != nil {
			t.Errorf("second Clear() error = %v", err)
		}
	})

	t.Run("EmptyRegistry", func(t *testing.T) {
		store := NewRegistryStore(filepath.Join(t.TempDir(), "registry.json"))
		if err := store.Save(map[string]map[string]string{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Load() = %v, want empty", got)
		}
	})
}
