package report

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/storage"
	"github.com/mmynk/rollcall/internal/storage/memory"
)

func sampleRecords() []models.AttendanceRecord {
	return []models.AttendanceRecord{
		{ID: "a", StaffID: "s1", StaffName: "Ann Ayisi", CheckInDate: "2024-03-01", Timestamp: 100},
		{ID: "b", StaffID: "s2", StaffName: "Mary Asiedu", CheckInDate: "2024-03-02", Timestamp: 200},
		{ID: "c", StaffID: "s1", StaffName: "Ann Ayisi", CheckInDate: "2024-03-02", Timestamp: 300},
		{ID: "d", StaffID: "s3", StaffName: "Victoria Azu", CheckInDate: "2024-03-05", Timestamp: 400},
		{ID: "e", StaffID: "s3", StaffName: "Victoria Azu", CheckInDate: "2024-03-05", Timestamp: 400},
	}
}

func ids(records []models.AttendanceRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter matches all", Filter{}, []string{"a", "b", "c", "d", "e"}},
		{"name substring", Filter{Search: "ann"}, []string{"a", "c"}},
		{"name is case-insensitive", Filter{Search: "VICTORIA"}, []string{"d", "e"}},
		{"staff id substring", Filter{Search: "s2"}, []string{"b"}},
		{"lower bound inclusive", Filter{From: "2024-03-02"}, []string{"b", "c", "d", "e"}},
		{"upper bound inclusive", Filter{To: "2024-03-02"}, []string{"a", "b", "c"}},
		{"range and search", Filter{Search: "ann", From: "2024-03-02", To: "2024-03-02"}, []string{"c"}},
		{"no match", Filter{Search: "nobody"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.filter.Apply(sampleRecords()))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterIdempotent(t *testing.T) {
	filters := []Filter{
		{},
		{Search: "a"},
		{From: "2024-03-02", To: "2024-03-04"},
		{Search: "s3", From: "2024-03-05"},
	}
	for _, f := range filters {
		once := f.Apply(sampleRecords())
		twice := f.Apply(once)
		if !reflect.DeepEqual(ids(once), ids(twice)) {
			t.Errorf("filter %+v not idempotent: %v vs %v", f, ids(once), ids(twice))
		}
	}
}

func TestSortIsTotal(t *testing.T) {
	want := []string{"d", "e", "c", "b", "a"}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		records := sampleRecords()
		rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
		Sort(records)
		if got := ids(records); !reflect.DeepEqual(got, want) {
			t.Fatalf("Sort() = %v, want %v", got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords(), 19)

	if s.TotalRecords != 5 {
		t.Errorf("TotalRecords = %d, want 5", s.TotalRecords)
	}
	if s.UniqueStaffPresent != 3 {
		t.Errorf("UniqueStaffPresent = %d, want 3", s.UniqueStaffPresent)
	}
	if s.TotalStaff != 19 {
		t.Errorf("TotalStaff = %d, want 19", s.TotalStaff)
	}
	// 5 / 3 = 1.666…
	if s.AveragePerStaff != 1.7 {
		t.Errorf("AveragePerStaff = %v, want 1.7", s.AveragePerStaff)
	}
	if s.ByDate["2024-03-05"] != 2 || s.ByDate["2024-03-01"] != 1 {
		t.Errorf("ByDate = %v", s.ByDate)
	}
	if s.ByStaff["Ann Ayisi"] != 2 {
		t.Errorf("ByStaff = %v", s.ByStaff)
	}
	if s.AttendanceRate != 15.8 {
		t.Errorf("AttendanceRate = %v, want 15.8", s.AttendanceRate)
	}
	if s.Absent != 16 {
		t.Errorf("Absent = %d, want 16", s.Absent)
	}
	if s.FirstDate != "2024-03-01" || s.LastDate != "2024-03-05" {
		t.Errorf("date span = %s..%s", s.FirstDate, s.LastDate)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 0)
	if s.AveragePerStaff != 0 || s.AttendanceRate != 0 || s.Absent != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	if s.ByDate == nil || s.ByStaff == nil {
		t.Error("expected non-nil histograms")
	}
}

func TestSummarizeGroupsByDisplayName(t *testing.T) {
	records := []models.AttendanceRecord{
		{StaffID: "s1", StaffName: "Same Name"},
		{StaffID: "s2", StaffName: "Same Name"},
	}
	s := Summarize(records, 2)
	if s.ByStaff["Same Name"] != 2 {
		t.Errorf("ByStaff = %v, want both counted under the shared name", s.ByStaff)
	}
	if s.UniqueStaffPresent != 2 {
		t.Errorf("UniqueStaffPresent = %d, want 2", s.UniqueStaffPresent)
	}
}

func TestTopStaffAndRecentDays(t *testing.T) {
	s := Summarize(sampleRecords(), 3)

	top := s.TopStaff(2)
	want := []Count{{"Ann Ayisi", 2}, {"Victoria Azu", 2}}
	if !reflect.DeepEqual(top, want) {
		t.Errorf("TopStaff(2) = %v, want %v", top, want)
	}

	days := s.RecentDays(7)
	if len(days) != 3 || days[0].Key != "2024-03-05" || days[2].Key != "2024-03-01" {
		t.Errorf("RecentDays(7) = %v", days)
	}
}

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func setupEngine(t *testing.T) (*Engine, *storage.Gateway, *memory.Store) {
	t.Helper()
	backend := memory.New()
	gw := storage.NewGateway(backend)
	e := NewEngine(gw, fixedCount(19))
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		gw.Close()
	})
	return e, gw, backend
}

func waitForRecords(t *testing.T, e *Engine, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.Records()) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("record count = %d, want %d", len(e.Records()), n)
}

func TestEngineFollowsStore(t *testing.T) {
	e, gw, _ := setupEngine(t)
	ctx := context.Background()

	for i, ts := range []int64{100, 300, 200} {
		rec := models.AttendanceRecord{StaffID: "s1", StaffName: "Ann Ayisi", CheckInDate: fmt.Sprintf("2024-03-%02d", i+1), Timestamp: ts}
		if _, err := gw.Append(ctx, storage.AttendancePath, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	waitForRecords(t, e, 3)

	records := e.Records()
	if records[0].Timestamp != 300 || records[2].Timestamp != 100 {
		t.Errorf("records not sorted most recent first: %v", records)
	}
	for _, r := range records {
		if r.ID == "" {
			t.Error("expected record id from key")
		}
	}

	res := e.Query(Filter{From: "2024-03-02"})
	if len(res.Records) != 2 {
		t.Errorf("Query returned %d records, want 2", len(res.Records))
	}
	if res.Summary.TotalStaff != 19 || res.Summary.UniqueStaffPresent != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}

	if err := e.Delete(ctx, records[0].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	waitForRecords(t, e, 2)
}

func TestClearAll(t *testing.T) {
	e, gw, _ := setupEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		gw.Append(ctx, storage.AttendancePath, models.AttendanceRecord{StaffID: "s1", Timestamp: int64(i)})
	}
	waitForRecords(t, e, 4)

	n, err := e.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if n != 4 {
		t.Errorf("ClearAll deleted %d, want 4", n)
	}
	waitForRecords(t, e, 0)
}

func TestClearAllPartialFailureResumes(t *testing.T) {
	e, gw, backend := setupEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		gw.Append(ctx, storage.AttendancePath, models.AttendanceRecord{StaffID: "s1", Timestamp: int64(i)})
	}
	waitForRecords(t, e, 4)

	deletes := 0
	backend.InjectFault(func(op, path string) error {
		if op != "delete" {
			return nil
		}
		deletes++
		if deletes == 3 {
			return errors.New("unavailable")
		}
		return nil
	})

	n, err := e.ClearAll(ctx)
	var bulkErr *BulkError
	if !errors.As(err, &bulkErr) {
		t.Fatalf("expected BulkError, got %v", err)
	}
	if n != 2 || bulkErr.Deleted != 2 || bulkErr.Remaining != 2 {
		t.Errorf("n = %d, BulkError = %+v", n, bulkErr)
	}
	var storeErr *storage.StoreError
	if !errors.As(err, &storeErr) {
		t.Error("expected BulkError to wrap the StoreError")
	}
	waitForRecords(t, e, 2)

	backend.InjectFault(nil)
	if _, err := e.ClearAll(ctx); err != nil {
		t.Fatalf("resumed ClearAll failed: %v", err)
	}
	waitForRecords(t, e, 0)
}

func TestClearAllBeforeStart(t *testing.T) {
	e := NewEngine(storage.NewGateway(memory.New()), nil)
	if _, err := e.ClearAll(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}
