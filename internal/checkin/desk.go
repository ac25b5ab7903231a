package checkin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmynk/rollcall/internal/clock"
	"github.com/mmynk/rollcall/internal/geo"
)

// idleTTL is how long an idle kiosk workflow is kept before being dropped.
const idleTTL = 30 * time.Minute

// DefaultMaxKiosks bounds the number of tracked kiosks.
const DefaultMaxKiosks = 256

// ErrTooManyKiosks is returned when every kiosk slot is held by a busy workflow.
var ErrTooManyKiosks = errors.New("too many kiosks are checking in")

// Desk holds one Workflow per kiosk so every browser has its own state machine.
type Desk struct {
	staff      StaffLookup
	store      Appender
	clock      clock.Reader
	resetAfter time.Duration
	maxKiosks  int

	mu    sync.Mutex
	kiosk map[string]*kioskEntry
}

type kioskEntry struct {
	wf       *Workflow
	lastUsed time.Time
}

// NewDesk creates a Desk whose workflows share the given dependencies.
func NewDesk(staff StaffLookup, store Appender, clk clock.Reader, resetAfter time.Duration) *Desk {
	return &Desk{
		staff:      staff,
		store:      store,
		clock:      clk,
		resetAfter: resetAfter,
		maxKiosks:  DefaultMaxKiosks,
		kiosk:      make(map[string]*kioskEntry),
	}
}

// WithMaxKiosks sets how many kiosks are tracked at once.
func (d *Desk) WithMaxKiosks(n int) *Desk {
	d.maxKiosks = n
	return d
}

// Workflow returns the workflow for kioskID, creating it on first use.
// When the desk is full the least recently used idle kiosk is dropped to
// make room; if none is idle ErrTooManyKiosks is returned.
func (d *Desk) Workflow(kioskID string) (*Workflow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.kiosk[kioskID]
	if !ok {
		if len(d.kiosk) >= d.maxKiosks && !d.evictLocked() {
			return nil, ErrTooManyKiosks
		}
		e = &kioskEntry{wf: NewWorkflow(d.staff, d.store, d.clock, d.resetAfter)}
		d.kiosk[kioskID] = e
	}
	e.lastUsed = time.Now()
	return e.wf, nil
}

func (d *Desk) evictLocked() bool {
	var oldest string
	var oldestUsed time.Time
	for id, e := range d.kiosk {
		if e.wf.Status().State != StateIdle {
			continue
		}
		if oldest == "" || e.lastUsed.Before(oldestUsed) {
			oldest, oldestUsed = id, e.lastUsed
		}
	}
	if oldest == "" {
		return false
	}
	d.kiosk[oldest].wf.Stop()
	delete(d.kiosk, oldest)
	return true
}

// Submit runs a check-in on the kiosk's workflow.
func (d *Desk) Submit(ctx context.Context, kioskID, staffID string, acq geo.Acquirer) (Receipt, error) {
	wf, err := d.Workflow(kioskID)
	if err != nil {
		return Receipt{}, err
	}
	return wf.Submit(ctx, staffID, acq)
}

// Status returns the kiosk's current state. Unknown kiosks are idle.
func (d *Desk) Status(kioskID string) Status {
	d.mu.Lock()
	e, ok := d.kiosk[kioskID]
	d.mu.Unlock()
	if !ok {
		return Status{State: StateIdle}
	}
	return e.wf.Status()
}

// Acknowledge dismisses the kiosk's error state.
func (d *Desk) Acknowledge(kioskID string) bool {
	d.mu.Lock()
	e, ok := d.kiosk[kioskID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	return e.wf.Acknowledge()
}

// Kiosks returns the number of tracked kiosks.
func (d *Desk) Kiosks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.kiosk)
}

// Prune drops idle workflows unused since before cutoff.
func (d *Desk) Prune(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, e := range d.kiosk {
		if e.lastUsed.Before(cutoff) && e.wf.Status().State == StateIdle {
			e.wf.Stop()
			delete(d.kiosk, id)
			n++
		}
	}
	return n
}

// Run prunes idle kiosks periodically until ctx is done.
func (d *Desk) Run(ctx context.Context) {
	ticker := time.NewTicker(idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.Prune(now.Add(-idleTTL))
		}
	}
}
