package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the registry file format.
const StateVersion = 1

// RegistryState is the on-disk form of the registry.
type RegistryState struct {
	// Version is the file format version.
	Version int `json:"version"`

	// SavedAt is when the registry was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Sections maps section names to their key/value pairs.
	Sections map[string]map[string]string `json:"sections,omitempty"`
}

// RegistryStore manages persistence of the registry to a JSON file.
type RegistryStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewRegistryStore creates a store writing to path.
func NewRegistryStore(path string) *RegistryStore {
	return &RegistryStore{path: path, now: time.Now}
}

// Path returns the file the store writes to.
func (s *RegistryStore) Path() string {
	return s.path
}

// Save writes sections to disk. The file is replaced atomically.
func (s *RegistryStore) Save(sections map[string]map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&RegistryState{
		Version:  StateVersion,
		SavedAt:  s.now(),
		Sections: sections,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".registry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the registry from disk.
// Returns nil, nil if the file doesn't exist (empty registry).
func (s *RegistryStore) Load() (map[string]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &RegistryState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("registry file version %d is newer than %d", state.Version, StateVersion)
	}
	return state.Sections, nil
}

// Clear removes the registry file.
func (s *RegistryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
