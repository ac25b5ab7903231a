package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/storage"
)

// ErrNotStarted is returned when the engine is used before Start.
var ErrNotStarted = errors.New("report engine not started")

// Store is the part of the gateway the engine needs.
type Store interface {
	Read(ctx context.Context, path string) (storage.Snapshot, error)
	Watch(ctx context.Context, path string) (*storage.Subscription, error)
	RemoveAt(ctx context.Context, path string) error
}

// StaffCounter reports the current roster size.
type StaffCounter interface {
	Count() int
}

// BulkError reports a bulk delete that stopped part way. The records that
// were deleted stay deleted.
type BulkError struct {
	Deleted   int
	Remaining int
	Err       error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("cleared %d records, %d remaining: %v", e.Deleted, e.Remaining, e.Err)
}

func (e *BulkError) Unwrap() error {
	return e.Err
}

// Result is a filtered, sorted view of the attendance records.
type Result struct {
	Records []models.AttendanceRecord `json:"records"`
	Summary Summary                   `json:"summary"`
}

// Engine keeps a sorted snapshot of "attendance" in sync with the store.
type Engine struct {
	store Store
	staff StaffCounter

	mu      sync.RWMutex
	records []models.AttendanceRecord
	loaded  chan struct{}
	sub     *storage.Subscription
}

// NewEngine creates an Engine. staff supplies the roster size for summaries.
func NewEngine(store Store, staff StaffCounter) *Engine {
	return &Engine{
		store:  store,
		staff:  staff,
		loaded: make(chan struct{}),
	}
}

// Start subscribes to the attendance path and waits for the first snapshot.
func (e *Engine) Start(ctx context.Context) error {
	sub, err := e.store.Watch(ctx, storage.AttendancePath)
	if err != nil {
		return err
	}

	first, err := sub.Next(ctx)
	if err == nil {
		err = first.Err
	}
	if err == nil {
		err = e.apply(first)
	}
	if err != nil {
		sub.Close()
		return err
	}

	e.mu.Lock()
	e.sub = sub
	e.mu.Unlock()
	close(e.loaded)

	go func() {
		for snap := range sub.C() {
			if snap.Err != nil {
				slog.Warn("Attendance snapshot failed", "error", snap.Err)
				continue
			}
			if err := e.apply(snap); err != nil {
				slog.Error("Failed to decode attendance snapshot", "error", err)
			}
		}
	}()
	return nil
}

// Close releases the live subscription.
func (e *Engine) Close() {
	e.mu.RLock()
	sub := e.sub
	e.mu.RUnlock()
	if sub != nil {
		sub.Close()
	}
}

func (e *Engine) apply(snap storage.Snapshot) error {
	records, err := storage.DecodeChildren(snap, func(r *models.AttendanceRecord, key string) { r.ID = key })
	if err != nil {
		return err
	}
	Sort(records)

	e.mu.Lock()
	e.records = records
	e.mu.Unlock()
	return nil
}

// Refresh reads the attendance path directly and replaces the snapshot.
func (e *Engine) Refresh(ctx context.Context) error {
	snap, err := e.store.Read(ctx, storage.AttendancePath)
	if err != nil {
		return err
	}
	return e.apply(snap)
}

// Records returns every record, most recent first.
func (e *Engine) Records() []models.AttendanceRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.AttendanceRecord, len(e.records))
	copy(out, e.records)
	return out
}

// Query returns the records matching f with their summary.
func (e *Engine) Query(f Filter) Result {
	records := f.Apply(e.Records())
	total := 0
	if e.staff != nil {
		total = e.staff.Count()
	}
	return Result{Records: records, Summary: Summarize(records, total)}
}

// Delete removes one record.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("record id is required")
	}
	if err := e.store.RemoveAt(ctx, storage.Join(storage.AttendancePath, id)); err != nil {
		return err
	}
	slog.Info("Attendance record deleted", "record_id", id)
	return nil
}

// ClearAll deletes every loaded record one at a time and returns the number
// deleted. The sweep is not atomic: on failure it stops and returns a
// *BulkError. Running it again resumes, since deleting a record that is
// already gone succeeds.
func (e *Engine) ClearAll(ctx context.Context) (int, error) {
	select {
	case <-e.loaded:
	default:
		return 0, ErrNotStarted
	}

	records := e.Records()
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return i, &BulkError{Deleted: i, Remaining: len(records) - i, Err: err}
		}
		if err := e.store.RemoveAt(ctx, storage.Join(storage.AttendancePath, r.ID)); err != nil {
			slog.Error("Clear all stopped", "deleted", i, "remaining", len(records)-i, "error", err)
			return i, &BulkError{Deleted: i, Remaining: len(records) - i, Err: err}
		}
	}

	slog.Info("Attendance cleared", "deleted", len(records))
	return len(records), nil
}
