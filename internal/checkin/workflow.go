// Package checkin runs the staff check-in state machine:
// idle → loading → success | error.
package checkin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/rollcall/internal/clock"
	"github.com/mmynk/rollcall/internal/geo"
	"github.com/mmynk/rollcall/internal/metrics"
	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/roster"
	"github.com/mmynk/rollcall/internal/storage"
)

// DefaultResetAfter is how long a successful check-in stays on screen.
const DefaultResetAfter = 5 * time.Second

// ErrBusy is returned when a check-in is submitted while the workflow is not idle.
var ErrBusy = errors.New("a check-in is already in progress")

// ErrStaffNotFound is the resolution failure for a stale or deleted selection.
var ErrStaffNotFound = &roster.ValidationError{Field: "staffId", Message: "Staff member not found"}

// State is a workflow state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// StaffLookup resolves a selected staff id against the current roster.
type StaffLookup interface {
	Lookup(id string) (models.StaffMember, bool)
}

// Appender writes a new record with a fresh identity.
type Appender interface {
	Append(ctx context.Context, path string, value any) (string, error)
}

// Receipt is what is displayed after a successful check-in.
type Receipt struct {
	Record          models.AttendanceRecord `json:"record"`
	RecordID        string                  `json:"recordId"`
	TimeDisplay     string                  `json:"timeDisplay"`
	AccuracyDisplay string                  `json:"accuracyDisplay"`
	MapURL          string                  `json:"mapUrl"`
}

// Status is a point-in-time view of the workflow.
type Status struct {
	State   State    `json:"state"`
	Message string   `json:"message,omitempty"`
	Receipt *Receipt `json:"receipt,omitempty"`
}

// Workflow is one client's check-in state machine.
type Workflow struct {
	staff      StaffLookup
	store      Appender
	clock      clock.Reader
	resetAfter time.Duration

	mu      sync.Mutex
	state   State
	message string
	receipt *Receipt
	timer   *time.Timer
}

// NewWorkflow creates an idle workflow. A zero resetAfter uses DefaultResetAfter.
func NewWorkflow(staff StaffLookup, store Appender, clk clock.Reader, resetAfter time.Duration) *Workflow {
	if resetAfter <= 0 {
		resetAfter = DefaultResetAfter
	}
	return &Workflow{
		staff:      staff,
		store:      store,
		clock:      clk,
		resetAfter: resetAfter,
		state:      StateIdle,
	}
}

// Status returns the current state.
func (w *Workflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{State: w.state, Message: w.message, Receipt: w.receipt}
}

// Submit runs one check-in for staffID using acq for the location fix.
//
// Without a selection the workflow stays idle and a *roster.ValidationError
// is returned. Location, resolution and store failures move the workflow to
// the error state, where it stays until Acknowledge. On success the workflow
// shows the receipt and returns to idle after the reset delay.
func (w *Workflow) Submit(ctx context.Context, staffID string, acq geo.Acquirer) (Receipt, error) {
	if staffID == "" {
		metrics.CheckIns.WithLabelValues("validation_error").Inc()
		return Receipt{}, &roster.ValidationError{Field: "staffId", Message: "Please select a staff member"}
	}

	w.mu.Lock()
	if w.state != StateIdle {
		w.mu.Unlock()
		metrics.CheckIns.WithLabelValues("busy").Inc()
		return Receipt{}, ErrBusy
	}
	w.state = StateLoading
	w.message = "Getting your location..."
	w.receipt = nil
	w.mu.Unlock()

	fix, err := acq.Acquire(ctx)
	if err != nil {
		metrics.CheckIns.WithLabelValues("location_error").Inc()
		return Receipt{}, w.fail(err, "Failed to get location. Please try again.")
	}

	member, ok := w.staff.Lookup(staffID)
	if !ok {
		metrics.CheckIns.WithLabelValues("validation_error").Inc()
		return Receipt{}, w.fail(ErrStaffNotFound, "")
	}

	now := w.clock.Now()
	record := models.AttendanceRecord{
		StaffID:     staffID,
		StaffName:   member.Name,
		CheckInDate: now.Date,
		CheckInTime: now.SecondsOfDay,
		Latitude:    fix.Latitude,
		Longitude:   fix.Longitude,
		Accuracy:    fix.Accuracy,
		Timestamp:   now.EpochMillis,
	}

	key, err := w.store.Append(ctx, storage.AttendancePath, record)
	if err != nil {
		metrics.CheckIns.WithLabelValues("store_error").Inc()
		return Receipt{}, w.fail(err, "Check-in failed")
	}
	record.ID = key

	receipt := Receipt{
		Record:          record,
		RecordID:        key,
		TimeDisplay:     now.Display,
		AccuracyDisplay: fix.AccuracyDisplay(),
		MapURL:          geo.MapURL(fix.Latitude, fix.Longitude),
	}

	w.mu.Lock()
	w.state = StateSuccess
	w.message = "Check-in successful!"
	w.receipt = &receipt
	w.stopTimerLocked()
	w.timer = time.AfterFunc(w.resetAfter, w.reset)
	w.mu.Unlock()

	metrics.CheckIns.WithLabelValues("success").Inc()
	slog.Info("Check-in recorded",
		"record_id", key,
		"staff_id", staffID,
		"date", record.CheckInDate,
		"accuracy_m", record.Accuracy,
	)
	return receipt, nil
}

// Acknowledge returns the workflow from the error state to idle.
// It reports whether the workflow was in the error state.
func (w *Workflow) Acknowledge() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateError {
		return false
	}
	w.state = StateIdle
	w.message = ""
	return true
}

// Stop cancels a pending success reset.
func (w *Workflow) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
}

func (w *Workflow) fail(err error, fallback string) error {
	msg := err.Error()
	var storeErr *storage.StoreError
	if errors.As(err, &storeErr) {
		msg = storeErr.Message()
	}
	if msg == "" {
		msg = fallback
	}

	w.mu.Lock()
	w.state = StateError
	w.message = msg
	w.receipt = nil
	w.mu.Unlock()

	slog.Warn("Check-in failed", "error", err)
	return err
}

func (w *Workflow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateSuccess {
		w.state = StateIdle
		w.message = ""
		w.receipt = nil
	}
	w.timer = nil
}

func (w *Workflow) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
