package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/storage"
	"github.com/mmynk/rollcall/internal/storage/memory"
)

func setupManager(t *testing.T, seed []models.StaffMember) (*Manager, *storage.Gateway, *memory.Store) {
	t.Helper()

	backend := memory.New()
	gw := storage.NewGateway(backend)
	m := NewManager(gw, seed)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		m.Close()
		gw.Close()
	})
	return m, gw, backend
}

// waitForCount polls until the live snapshot holds n entries.
func waitForCount(t *testing.T, m *Manager, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Count() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("roster count = %d, want %d", m.Count(), n)
}

func TestDefaultSeed(t *testing.T) {
	seed := DefaultSeed()
	if len(seed) != 19 {
		t.Fatalf("expected 19 built-in staff, got %d", len(seed))
	}
	if seed[0].Name != "Ann Ayisi" || seed[0].Telephone != "0243054523" {
		t.Errorf("first entry = %+v", seed[0])
	}
}

func TestSeedIfEmpty(t *testing.T) {
	seed := []models.StaffMember{
		{Name: "Ann Ayisi", Email: "ann@example.com", Telephone: "1"},
		{Name: "Boakye Richard", Email: "richard@example.com", Telephone: "2"},
		{Name: "Ann Again", Email: "ann@example.com", Telephone: "3"},
	}
	m, _, _ := setupManager(t, seed)
	ctx := context.Background()

	added, err := m.SeedIfEmpty(ctx)
	if err != nil {
		t.Fatalf("SeedIfEmpty failed: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2 (duplicate email skipped)", added)
	}
	waitForCount(t, m, 2)

	// A second call is a no-op.
	added, err = m.SeedIfEmpty(ctx)
	if err != nil {
		t.Fatalf("second SeedIfEmpty failed: %v", err)
	}
	if added != 0 {
		t.Errorf("second seed added %d entries", added)
	}
}

func TestSeedSkipsNonEmptyRoster(t *testing.T) {
	m, _, _ := setupManager(t, DefaultSeed())
	ctx := context.Background()

	if _, err := m.Add(ctx, models.StaffMember{Name: "A", Email: "a@x", Telephone: "1", Role: "Teacher"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	waitForCount(t, m, 1)

	added, err := m.SeedIfEmpty(ctx)
	if err != nil {
		t.Fatalf("SeedIfEmpty failed: %v", err)
	}
	if added != 0 {
		t.Errorf("seeded %d entries into a non-empty roster", added)
	}
}

func TestSeedAfterRosterEmptied(t *testing.T) {
	seed := []models.StaffMember{
		{Name: "Ann Ayisi", Email: "ann@example.com", Telephone: "1"},
		{Name: "Boakye Richard", Email: "richard@example.com", Telephone: "2"},
	}
	m, _, _ := setupManager(t, seed)
	ctx := context.Background()

	if _, err := m.SeedIfEmpty(ctx); err != nil {
		t.Fatalf("SeedIfEmpty failed: %v", err)
	}
	if _, err := m.Seed(ctx); !errors.Is(err, ErrRosterNotEmpty) {
		t.Fatalf("Seed on seeded roster: err = %v, want ErrRosterNotEmpty", err)
	}
	waitForCount(t, m, 2)

	for _, s := range m.List() {
		if err := m.Delete(ctx, s.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}
	waitForCount(t, m, 0)

	// The startup seed has already run for this manager.
	if added, err := m.SeedIfEmpty(ctx); err != nil || added != 0 {
		t.Errorf("SeedIfEmpty after emptying = %d, %v", added, err)
	}

	added, err := m.Seed(ctx)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	waitForCount(t, m, 2)
}

func TestSeedBeforeStart(t *testing.T) {
	m := NewManager(storage.NewGateway(memory.New()), DefaultSeed())
	if _, err := m.SeedIfEmpty(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestAddValidation(t *testing.T) {
	m, _, _ := setupManager(t, nil)

	tests := []struct {
		name  string
		staff models.StaffMember
		field string
	}{
		{"missing name", models.StaffMember{Email: "e", Telephone: "t", Role: "r"}, "name"},
		{"missing email", models.StaffMember{Name: "n", Telephone: "t", Role: "r"}, "email"},
		{"missing telephone", models.StaffMember{Name: "n", Email: "e", Role: "r"}, "telephone"},
		{"blank role", models.StaffMember{Name: "n", Email: "e", Telephone: "t", Role: "  "}, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Add(context.Background(), tt.staff)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("field = %s, want %s", vErr.Field, tt.field)
			}
			if vErr.Error() != "Please fill in all fields" {
				t.Errorf("message = %q", vErr.Error())
			}
		})
	}
}

func TestAddLookupDelete(t *testing.T) {
	m, _, _ := setupManager(t, nil)
	ctx := context.Background()

	added, err := m.Add(ctx, models.StaffMember{Name: "Ann Ayisi", Email: "ann@example.com", Telephone: "024", Role: "Teacher"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected ID to be assigned")
	}
	waitForCount(t, m, 1)

	got, ok := m.Lookup(added.ID)
	if !ok || got.Name != "Ann Ayisi" {
		t.Errorf("Lookup(%s) = %+v, %v", added.ID, got, ok)
	}

	if err := m.Delete(ctx, added.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	waitForCount(t, m, 0)

	if _, ok := m.Lookup(added.ID); ok {
		t.Error("expected deleted staff to be gone")
	}
}

func TestRemoveDuplicates(t *testing.T) {
	m, _, _ := setupManager(t, nil)
	ctx := context.Background()

	entries := []models.StaffMember{
		{Name: "A1", Email: "a@x", Telephone: "1", Role: "r"},
		{Name: "B1", Email: "b@x", Telephone: "1", Role: "r"},
		{Name: "A2", Email: "a@x", Telephone: "1", Role: "r"},
		{Name: "A3", Email: "a@x", Telephone: "1", Role: "r"},
		{Name: "B2", Email: "b@x", Telephone: "1", Role: "r"},
		{Name: "C1", Email: "c@x", Telephone: "1", Role: "r"},
	}
	for _, e := range entries {
		if _, err := m.Add(ctx, e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	waitForCount(t, m, len(entries))

	removed, err := m.RemoveDuplicates(ctx)
	if err != nil {
		t.Fatalf("RemoveDuplicates failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	waitForCount(t, m, 3)

	names := map[string]bool{}
	for _, s := range m.List() {
		names[s.Name] = true
	}
	for _, want := range []string{"A1", "B1", "C1"} {
		if !names[want] {
			t.Errorf("expected first entry %s to survive, roster = %v", want, names)
		}
	}
}

func TestRemoveDuplicatesStopsOnFailure(t *testing.T) {
	m, _, backend := setupManager(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Add(ctx, models.StaffMember{Name: "Dup", Email: "d@x", Telephone: "1", Role: "r"})
	}
	waitForCount(t, m, 3)

	calls := 0
	backend.InjectFault(func(op, path string) error {
		if op != "delete" {
			return nil
		}
		calls++
		if calls == 2 {
			return errors.New("network error")
		}
		return nil
	})

	removed, err := m.RemoveDuplicates(ctx)
	var storeErr *storage.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d before failure, want 1", removed)
	}
}

func TestDuplicates(t *testing.T) {
	staff := []models.StaffMember{
		{ID: "1", Email: "a"}, {ID: "2", Email: "a"}, {ID: "3", Email: "b"},
		{ID: "4", Email: "a"}, {ID: "5", Email: "b"},
	}
	got := Duplicates(staff)
	want := []string{"2", "4", "5"}
	if len(got) != len(want) {
		t.Fatalf("Duplicates() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Duplicates()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFilter(t *testing.T) {
	staff := []models.StaffMember{
		{Name: "Ann Ayisi", Email: "annayisi60@gmail.com"},
		{Name: "Mary Asiedu", Email: "mary@rhemaprep.edu"},
		{Name: "Victoria Azu", Email: "azu00362@gmail.com"},
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"ann", 1},
		{"ASIEDU", 1},
		{"gmail", 2},
		{"RHEMAPREP", 1},
		{"zzz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := Filter(staff, tt.query); len(got) != tt.want {
				t.Errorf("Filter(%q) returned %d, want %d", tt.query, len(got), tt.want)
			}
		})
	}
}
