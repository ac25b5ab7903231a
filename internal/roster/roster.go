// Package roster manages the staff list: live snapshot, seeding, add/delete,
// duplicate sweeps and search.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/storage"
)

var (
	// ErrNotStarted is returned when the manager is used before Start.
	ErrNotStarted = errors.New("roster not started")
	// ErrRosterNotEmpty is returned by Seed when staff are already present.
	ErrRosterNotEmpty = errors.New("roster already has staff")
)

// ValidationError reports a missing or invalid form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Store is the part of the gateway the roster needs.
type Store interface {
	Read(ctx context.Context, path string) (storage.Snapshot, error)
	Watch(ctx context.Context, path string) (*storage.Subscription, error)
	Append(ctx context.Context, path string, value any) (string, error)
	RemoveAt(ctx context.Context, path string) error
}

// Manager keeps an in-memory snapshot of "staff" and performs roster edits.
//
// Seeding and duplicate sweeps act on the snapshot without re-validating
// before each write. They are serialized within this process, but two
// processes sharing a backend can still race and leave duplicates behind.
type Manager struct {
	store Store
	seed  []models.StaffMember

	mu     sync.RWMutex
	staff  []models.StaffMember
	loaded chan struct{}
	sub    *storage.Subscription

	// writeMu serializes seeding and RemoveDuplicates.
	writeMu sync.Mutex
	seeded  bool
}

// NewManager creates a Manager. seed is the built-in list used by seeding.
func NewManager(store Store, seed []models.StaffMember) *Manager {
	return &Manager{
		store:  store,
		seed:   seed,
		loaded: make(chan struct{}),
	}
}

// Start subscribes to the staff path and waits for the first snapshot.
// The subscription lives until Close or until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	sub, err := m.store.Watch(ctx, storage.StaffPath)
	if err != nil {
		return err
	}

	first, err := sub.Next(ctx)
	if err != nil {
		sub.Close()
		return err
	}
	if first.Err != nil {
		sub.Close()
		return first.Err
	}
	if err := m.apply(first); err != nil {
		sub.Close()
		return err
	}

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
	close(m.loaded)

	go m.follow(sub)
	return nil
}

// Close releases the live subscription.
func (m *Manager) Close() {
	m.mu.RLock()
	sub := m.sub
	m.mu.RUnlock()
	if sub != nil {
		sub.Close()
	}
}

func (m *Manager) follow(sub *storage.Subscription) {
	for snap := range sub.C() {
		if snap.Err != nil {
			slog.Warn("Roster snapshot failed", "error", snap.Err)
			continue
		}
		if err := m.apply(snap); err != nil {
			slog.Error("Failed to decode roster snapshot", "error", err)
		}
	}
}

func (m *Manager) apply(snap storage.Snapshot) error {
	staff, err := storage.DecodeChildren(snap, func(s *models.StaffMember, key string) { s.ID = key })
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.staff = staff
	m.mu.Unlock()
	return nil
}

// Refresh reads the staff path directly and replaces the snapshot.
func (m *Manager) Refresh(ctx context.Context) error {
	snap, err := m.store.Read(ctx, storage.StaffPath)
	if err != nil {
		return err
	}
	return m.apply(snap)
}

// List returns the roster in snapshot (key) order.
func (m *Manager) List() []models.StaffMember {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StaffMember, len(m.staff))
	copy(out, m.staff)
	return out
}

// Count returns the number of staff in the snapshot.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.staff)
}

// Lookup resolves a staff id against the snapshot.
func (m *Manager) Lookup(id string) (models.StaffMember, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.staff {
		if s.ID == id {
			return s, true
		}
	}
	return models.StaffMember{}, false
}

// Search returns staff whose name or email contains query, case-insensitively.
func (m *Manager) Search(query string) []models.StaffMember {
	return Filter(m.List(), query)
}

// Filter returns the members of staff whose name or email contains query,
// case-insensitively. An empty query matches everyone.
func Filter(staff []models.StaffMember, query string) []models.StaffMember {
	q := strings.ToLower(query)
	out := make([]models.StaffMember, 0, len(staff))
	for _, s := range staff {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.Email), q) {
			out = append(out, s)
		}
	}
	return out
}

// SeedIfEmpty inserts the built-in roster when the snapshot is empty. It runs
// at most once successfully per Manager; entries whose email is already in
// the snapshot are skipped. It returns the number of entries added.
func (m *Manager) SeedIfEmpty(ctx context.Context) (int, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.seeded || len(m.List()) > 0 {
		return 0, nil
	}
	return m.seedLocked(ctx)
}

// Seed inserts the built-in roster on an admin's request. The store is re-read
// first; a roster that still has entries returns ErrRosterNotEmpty. Unlike
// SeedIfEmpty it may run again after the roster has been emptied.
func (m *Manager) Seed(ctx context.Context) (int, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.Refresh(ctx); err != nil {
		return 0, err
	}
	if len(m.List()) > 0 {
		return 0, ErrRosterNotEmpty
	}
	return m.seedLocked(ctx)
}

func (m *Manager) seedLocked(ctx context.Context) (int, error) {
	emails := make(map[string]bool, len(m.seed))
	added := 0
	for _, member := range m.seed {
		if emails[member.Email] {
			continue
		}
		if _, err := m.store.Append(ctx, storage.StaffPath, member); err != nil {
			return added, fmt.Errorf("seed %s: %w", member.Email, err)
		}
		emails[member.Email] = true
		added++
	}

	m.seeded = true
	slog.Info("Roster seeded", "added", added)
	return added, nil
}

// Add validates and appends a new staff member.
func (m *Manager) Add(ctx context.Context, s models.StaffMember) (models.StaffMember, error) {
	if err := Validate(s); err != nil {
		return models.StaffMember{}, err
	}

	key, err := m.store.Append(ctx, storage.StaffPath, s)
	if err != nil {
		return models.StaffMember{}, err
	}
	s.ID = key
	slog.Info("Staff member added", "staff_id", key, "email", s.Email)
	return s, nil
}

// Validate checks that every field of a new staff member is filled in.
func Validate(s models.StaffMember) error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", s.Name},
		{"email", s.Email},
		{"telephone", s.Telephone},
		{"role", s.Role},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Message: "Please fill in all fields"}
		}
	}
	return nil
}

// Delete removes a staff member. It cannot be undone.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Message: "staff id is required"}
	}
	if err := m.store.RemoveAt(ctx, storage.Join(storage.StaffPath, id)); err != nil {
		return err
	}
	slog.Info("Staff member deleted", "staff_id", id)
	return nil
}

// Duplicates returns the ids to delete so that one entry per email remains:
// the first id seen for each email (in the given order) is kept.
func Duplicates(staff []models.StaffMember) []string {
	seen := make(map[string]bool, len(staff))
	var dupes []string
	for _, s := range staff {
		if seen[s.Email] {
			dupes = append(dupes, s.ID)
			continue
		}
		seen[s.Email] = true
	}
	return dupes
}

// RemoveDuplicates deletes every staff entry whose email already appeared
// earlier in the snapshot and returns how many were removed. Deletes are
// issued one by one; a failure stops the sweep without undoing earlier deletes.
func (m *Manager) RemoveDuplicates(ctx context.Context) (int, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	dupes := Duplicates(m.List())
	removed := 0
	for _, id := range dupes {
		if err := m.store.RemoveAt(ctx, storage.Join(storage.StaffPath, id)); err != nil {
			return removed, err
		}
		removed++
	}

	slog.Info("Duplicate staff cleared", "removed", removed)
	return removed, nil
}

func (m *Manager) ready() error {
	select {
	case <-m.loaded:
		return nil
	default:
		return ErrNotStarted
	}
}
