// Package statestore provides the persistent key/value capability the relay
// delegates per-tab UI state to. Values are opaque JSON documents, one file
// per key.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Store manages state files on disk and notifies change listeners.
type Store struct {
	dir string

	mu       sync.Mutex
	watchers []func(key string)
}

// New creates a Store and ensures the directory exists.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) validateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid state key: %q", key)
	}
	return nil
}

// Set writes a value under a key and notifies listeners.
func (s *Store) Set(key string, value any) error {
	if err := s.validateKey(key); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal %s: %w", key, err)
	}

	s.mu.Lock()
	err = os.WriteFile(filepath.Join(s.dir, key+".json"), data, 0o644)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("statestore: write %s: %w", key, err)
	}

	s.notify(key)
	return nil
}

// Get reads a key into out. The second return is false when the key does
// not exist.
func (s *Store) Get(key string, out any) (bool, error) {
	if err := s.validateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	data, err := os.ReadFile(filepath.Join(s.dir, key+".json"))
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("statestore: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("statestore: unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes the given keys. Missing keys are not an error; each removal
// notifies listeners.
func (s *Store) Remove(keys ...string) error {
	for _, key := range keys {
		if err := s.validateKey(key); err != nil {
			return err
		}
		s.mu.Lock()
		err := os.Remove(filepath.Join(s.dir, key+".json"))
		s.mu.Unlock()
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("statestore: remove %s: %w", key, err)
		}
		s.notify(key)
	}
	return nil
}

// OnChange registers a listener invoked with the key after every Set or
// Remove. Listeners run synchronously on the mutating call.
func (s *Store) OnChange(fn func(key string)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *Store) notify(key string) {
	s.mu.Lock()
	watchers := append([]func(string){}, s.watchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(key)
	}
}
