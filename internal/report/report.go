// Package report filters, sorts and aggregates attendance records.
package report

import (
	"math"
	"sort"
	"strings"

	"github.com/mmynk/rollcall/internal/models"
)

// Filter selects attendance records.
// From and To are inclusive YYYY-MM-DD bounds; empty means unbounded.
type Filter struct {
	Search string `json:"search"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Match reports whether r passes the filter. Search matches the staff name or
// staff id as a case-insensitive substring. Dates compare as strings, which is
// correct because the format is fixed-width.
func (f Filter) Match(r models.AttendanceRecord) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.StaffName), q) &&
			!strings.Contains(strings.ToLower(r.StaffID), q) {
			return false
		}
	}
	if f.From != "" && r.CheckInDate < f.From {
		return false
	}
	if f.To != "" && r.CheckInDate > f.To {
		return false
	}
	return true
}

// Apply returns the records that pass the filter, preserving order.
func (f Filter) Apply(records []models.AttendanceRecord) []models.AttendanceRecord {
	out := make([]models.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Search == "" && f.From == "" && f.To == ""
}

// Sort orders records most recent first. Equal timestamps are ordered by id
// so the result does not depend on input order.
func Sort(records []models.AttendanceRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.ID < b.ID
	})
}

// Count is one histogram bucket.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary aggregates a filtered record set.
type Summary struct {
	TotalRecords       int            `json:"totalRecords"`
	UniqueStaffPresent int            `json:"uniqueStaffPresent"`
	TotalStaff         int            `json:"totalStaff"`
	AveragePerStaff    float64        `json:"averagePerStaff"`
	ByDate             map[string]int `json:"byDate"`

	// ByStaff is keyed by display name, so two staff sharing a name are
	// counted together.
	ByStaff map[string]int `json:"byStaff"`

	// AttendanceRate is the percentage of the roster present, one decimal.
	AttendanceRate float64 `json:"attendanceRate"`
	Absent         int     `json:"absent"`

	// FirstDate and LastDate span the record dates; empty with no records.
	FirstDate string `json:"firstDate,omitempty"`
	LastDate  string `json:"lastDate,omitempty"`
}

// Summarize aggregates records against a roster of totalStaff members.
func Summarize(records []models.AttendanceRecord, totalStaff int) Summary {
	s := Summary{
		TotalRecords: len(records),
		TotalStaff:   totalStaff,
		ByDate:       make(map[string]int),
		ByStaff:      make(map[string]int),
	}

	present := make(map[string]struct{})
	for _, r := range records {
		present[r.StaffID] = struct{}{}
		s.ByDate[r.CheckInDate]++
		s.ByStaff[r.StaffName]++

		if s.FirstDate == "" || r.CheckInDate < s.FirstDate {
			s.FirstDate = r.CheckInDate
		}
		if r.CheckInDate > s.LastDate {
			s.LastDate = r.CheckInDate
		}
	}
	s.UniqueStaffPresent = len(present)

	if s.UniqueStaffPresent > 0 {
		s.AveragePerStaff = round1(float64(s.TotalRecords) / float64(s.UniqueStaffPresent))
	}
	if totalStaff > 0 {
		s.AttendanceRate = round1(float64(s.UniqueStaffPresent) * 100 / float64(totalStaff))
		s.Absent = max(totalStaff-s.UniqueStaffPresent, 0)
	}
	return s
}

// TopStaff returns the n names with the most check-ins, highest first.
// Ties are ordered by name.
func (s Summary) TopStaff(n int) []Count {
	return topN(s.ByStaff, n, func(a, b Count) bool {
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Key < b.Key
	})
}

// RecentDays returns the n most recent dates with their counts, newest first.
func (s Summary) RecentDays(n int) []Count {
	return topN(s.ByDate, n, func(a, b Count) bool {
		return a.Key > b.Key
	})
}

func topN(m map[string]int, n int, less func(a, b Count) bool) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
