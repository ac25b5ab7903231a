// Package storage provides the key-path store used for every persisted entity.
//
// Data is addressed by slash-separated paths ("staff", "staff/{id}",
// "attendance/{id}"). A Backend persists JSON values at those paths; the
// Gateway wraps a Backend with live-read subscriptions, error wrapping,
// metrics and tracing.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Well-known collection paths.
const (
	StaffPath      = "staff"
	AttendancePath = "attendance"
	AdminsPath     = "admins"
)

// ErrInvalidPath is returned for empty or malformed key paths.
var ErrInvalidPath = errors.New("invalid key path")

// Backend defines the interface for key-path persistence.
// This abstraction allows swapping between SQLite, Postgres, Firebase or an
// in-memory map without changing the components above the Gateway.
type Backend interface {
	// Get returns the value stored at path. If no value is stored at path
	// itself, it returns a JSON object of path's direct children keyed by
	// child key. It returns nil when neither exists.
	Get(ctx context.Context, path string) (json.RawMessage, error)

	// Push stores value under a freshly generated child key of path and
	// returns that key.
	Push(ctx context.Context, path string, value json.RawMessage) (string, error)

	// Set replaces whatever is stored at path (including children) with value.
	Set(ctx context.Context, path string, value json.RawMessage) error

	// Update merges fields into the object stored at path, creating it if needed.
	Update(ctx context.Context, path string, fields map[string]json.RawMessage) error

	// Delete removes path and everything below it. Deleting an absent path
	// is not an error.
	Delete(ctx context.Context, path string) error

	// Close releases any resources held by the backend.
	Close() error
}

// StoreError wraps a failure reported by the backend.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Message returns the transport's own message, as shown to users.
func (e *StoreError) Message() string {
	return e.Err.Error()
}

// NewKey returns a new child key. Keys are UUIDv7 strings, so ordering keys
// lexicographically orders them by creation time.
func NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CleanPath trims surrounding slashes and validates every segment.
func CleanPath(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "#$[]") {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return path, nil
}

// Join builds a key path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath returns the parent path and the last key of path.
// The parent of a top-level path is "".
func SplitPath(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Related reports whether a write to one path can change what is read at the
// other, i.e. the paths are equal or one is an ancestor of the other.
func Related(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// Snapshot is a point-in-time materialization of the value at a path.
type Snapshot struct {
	Path   string
	Exists bool
	Value  json.RawMessage

	// Err is set when the read that produced this snapshot failed.
	Err error
}

// Decode unmarshals the snapshot value into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return nil
	}
	return json.Unmarshal(s.Value, v)
}

// Children decodes the snapshot as an object of child key to raw value.
func (s Snapshot) Children() (map[string]json.RawMessage, error) {
	children := make(map[string]json.RawMessage)
	if !s.Exists {
		return children, nil
	}
	if err := json.Unmarshal(s.Value, &children); err != nil {
		return nil, fmt.Errorf("decode children of %q: %w", s.Path, err)
	}
	return children, nil
}

// DecodeChildren decodes every child of the snapshot into T, in key order.
// setKey is called with each child's key so callers can record the ID.
func DecodeChildren[T any](s Snapshot, setKey func(*T, string)) ([]T, error) {
	children, err := s.Children()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		if err := json.Unmarshal(children[k], &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", s.Path, k, err)
		}
		if setKey != nil {
			setKey(&v, k)
		}
		out = append(out, v)
	}
	return out, nil
}
