// Package memory provides an in-memory storage.Backend for tests and demos.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mmynk/rollcall/internal/storage"
)

// Ensure Store implements storage.Backend
var _ storage.Backend = (*Store)(nil)

// FaultFunc is consulted before every operation; a non-nil error is
// returned in place of performing it.
type FaultFunc func(op, path string) error

// Store keeps every value in a map keyed by full path.
type Store struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	fault  FaultFunc
}

// New creates an empty Store.
func New() *Store {
	return &Store{values: make(map[string]json.RawMessage)}
}

// InjectFault installs fn as the fault hook. Pass nil to clear it.
func (s *Store) InjectFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) check(op, path string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, path)
}

// Get returns the value at path or the object of its direct children.
func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("get", path); err != nil {
		return nil, err
	}

	if v, ok := s.values[path]; ok {
		return v, nil
	}

	children := make(map[string]json.RawMessage)
	prefix := path + "/"
	for p, v := range s.values {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		children[rest] = v
	}
	if len(children) == 0 {
		return nil, nil
	}
	return json.Marshal(children)
}

// Push stores value under a new child key.
func (s *Store) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("push", path); err != nil {
		return "", err
	}

	key := storage.NewKey()
	s.values[storage.Join(path, key)] = clone(value)
	return key, nil
}

// Set replaces the value at path.
func (s *Store) Set(ctx context.Context, path string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("set", path); err != nil {
		return err
	}

	s.deleteLocked(path)
	s.values[path] = clone(value)
	return nil
}

// Update merges fields into the object at path.
func (s *Store) Update(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update", path); err != nil {
		return err
	}

	obj := make(map[string]json.RawMessage)
	if existing, ok := s.values[path]; ok {
		if err := json.Unmarshal(existing, &obj); err != nil {
			return fmt.Errorf("value at %q is not an object: %w", path, err)
		}
	}
	for k, v := range fields {
		obj[k] = v
	}
	merged, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	s.values[path] = merged
	return nil
}

// Delete removes path and its descendants.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete", path); err != nil {
		return err
	}

	s.deleteLocked(path)
	return nil
}

// Paths returns every stored path in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.values))
	for p := range s.values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) deleteLocked(path string) {
	delete(s.values, path)
	prefix := path + "/"
	for p := range s.values {
		if strings.HasPrefix(p, prefix) {
			delete(s.values, p)
		}
	}
}

func clone(v json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
