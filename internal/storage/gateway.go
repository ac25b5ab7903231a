package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmynk/rollcall/internal/metrics"
)

// ErrClosed is returned by a Gateway after Close.
var ErrClosed = errors.New("store gateway closed")

// Gateway is the read/write/delete facade over a Backend.
// All failures are returned as *StoreError. Nothing is retried or queued.
type Gateway struct {
	backend Backend
	poll    time.Duration
	tracer  trace.Tracer

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPollInterval makes every subscription re-read its path on the given
// interval in addition to after local writes. Use it when other processes
// write to the same backend.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) {
		g.poll = d
	}
}

// NewGateway creates a Gateway over backend.
func NewGateway(backend Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend: backend,
		tracer:  otel.Tracer("github.com/mmynk/rollcall/internal/storage"),
		subs:    make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Read returns the current snapshot at path.
func (g *Gateway) Read(ctx context.Context, path string) (Snapshot, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return Snapshot{}, &StoreError{Op: "read", Path: path, Err: err}
	}
	path = clean

	var raw json.RawMessage
	err = g.do(ctx, "read", path, func(ctx context.Context) error {
		var err error
		raw, err = g.backend.Get(ctx, path)
		return err
	})
	if err != nil {
		return Snapshot{Path: path, Err: err}, err
	}
	return Snapshot{Path: path, Exists: len(raw) > 0 && string(raw) != "null", Value: raw}, nil
}

// Append stores value under a new child key of path and returns the key.
func (g *Gateway) Append(ctx context.Context, path string, value any) (string, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return "", &StoreError{Op: "append", Path: path, Err: err}
	}
	path = clean
	raw, err := json.Marshal(value)
	if err != nil {
		return "", &StoreError{Op: "append", Path: path, Err: err}
	}

	var key string
	err = g.do(ctx, "append", path, func(ctx context.Context) error {
		var err error
		key, err = g.backend.Push(ctx, path, raw)
		return err
	})
	if err != nil {
		return "", err
	}
	g.notify(Join(path, key))
	return key, nil
}

// Set overwrites the value at path.
func (g *Gateway) Set(ctx context.Context, path string, value any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return &StoreError{Op: "set", Path: path, Err: err}
	}
	path = clean
	raw, err := json.Marshal(value)
	if err != nil {
		return &StoreError{Op: "set", Path: path, Err: err}
	}

	if err := g.do(ctx, "set", path, func(ctx context.Context) error {
		return g.backend.Set(ctx, path, raw)
	}); err != nil {
		return err
	}
	g.notify(path)
	return nil
}

// Update merges partial into the object at path.
func (g *Gateway) Update(ctx context.Context, path string, partial map[string]any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return &StoreError{Op: "update", Path: path, Err: err}
	}
	path = clean

	fields := make(map[string]json.RawMessage, len(partial))
	for k, v := range partial {
		raw, err := json.Marshal(v)
		if err != nil {
			return &StoreError{Op: "update", Path: path, Err: fmt.Errorf("field %q: %w", k, err)}
		}
		fields[k] = raw
	}

	if err := g.do(ctx, "update", path, func(ctx context.Context) error {
		return g.backend.Update(ctx, path, fields)
	}); err != nil {
		return err
	}
	g.notify(path)
	return nil
}

// RemoveAt deletes path and everything below it.
func (g *Gateway) RemoveAt(ctx context.Context, path string) error {
	clean, err := CleanPath(path)
	if err != nil {
		return &StoreError{Op: "remove", Path: path, Err: err}
	}
	path = clean

	if err := g.do(ctx, "remove", path, func(ctx context.Context) error {
		return g.backend.Delete(ctx, path)
	}); err != nil {
		return err
	}
	g.notify(path)
	return nil
}

// Subscribers returns the number of open subscriptions.
func (g *Gateway) Subscribers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Close releases every open subscription and closes the backend.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	subs := make([]*Subscription, 0, len(g.subs))
	for s := range g.subs {
		subs = append(subs, s)
	}
	g.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return g.backend.Close()
}

// do runs one backend call with tracing, metrics and error wrapping.
func (g *Gateway) do(ctx context.Context, op, path string, fn func(context.Context) error) error {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return &StoreError{Op: op, Path: path, Err: ErrClosed}
	}

	ctx, span := g.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("store.path", path),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.StoreOperations.WithLabelValues(op, metrics.Result(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Debug("Store operation failed", "op", op, "path", path, "error", err)
		return &StoreError{Op: op, Path: path, Err: err}
	}
	return nil
}

// notify wakes every subscription whose path is affected by a write to path.
func (g *Gateway) notify(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for s := range g.subs {
		if Related(s.path, path) {
			s.wake()
		}
	}
}

func (g *Gateway) register(s *Subscription) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.subs[s] = struct{}{}
	metrics.Subscriptions.Inc()
	return nil
}

func (g *Gateway) unregister(s *Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.subs[s]; ok {
		delete(g.subs, s)
		metrics.Subscriptions.Dec()
	}
}
