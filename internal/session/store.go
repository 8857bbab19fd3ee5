// Package session persists the dispatch site's authenticated browser state
// between runs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/dispatch-tools/consultbot/internal/config"
)

// Cookie is a browser cookie in a browser-neutral form
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // Unix seconds; 0 = session cookie
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// State is the serialized authentication artifact
type State struct {
	Cookies []Cookie  `json:"cookies"`
	SavedAt time.Time `json:"savedAt"`
}

// Store reads and writes State at a fixed path
type Store struct {
	path string
	lock *flock.Flock
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *Store) Path() string { return s.path }

// Restore loads the saved state. It returns nil, nil when nothing has been
// saved yet.
func (s *Store) Restore() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse session state %s: %w", s.path, err)
	}
	return &state, nil
}

// Save overwrites the stored state. The write goes through a temp file and
// rename so a crash never leaves a truncated file behind.
func (s *Store) Save(state *State) error {
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set state permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session state: %w", err)
	}
	return nil
}

// Clear removes any saved state
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session state: %w", err)
	}
	return nil
}

// Lock takes an exclusive advisory lock for the lifetime of a run so two
// runs never share the same browser state. A lock held elsewhere is a
// configuration error.
func (s *Store) Lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock session state: %w", err)
	}
	if !ok {
		return nil, &config.ConfigurationError{
			Op:  "lock session state",
			Err: fmt.Errorf("another run holds %s", s.lock.Path()),
		}
	}
	return func() { _ = s.lock.Unlock() }, nil
}
