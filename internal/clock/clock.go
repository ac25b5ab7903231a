// Package clock reads the current date and time in the shapes stored on an
// attendance record.
package clock

import "time"

// DisplayLayout is the 12-hour time format shown to staff.
const DisplayLayout = "3:04:05 PM"

// Reading is one clock read.
type Reading struct {
	// Date is the UTC calendar date of the instant (YYYY-MM-DD).
	Date string

	// SecondsOfDay is the number of seconds since local midnight (0-86399).
	SecondsOfDay int

	// Display is the local 12-hour time, e.g. "8:05:09 AM".
	Display string

	// EpochMillis is the instant in milliseconds since the Unix epoch.
	EpochMillis int64
}

// Reader reads the clock.
type Reader interface {
	Now() Reading
}

// Read converts t into a Reading, using loc for the local fields.
func Read(t time.Time, loc *time.Location) Reading {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return Reading{
		Date:         t.UTC().Format(time.DateOnly),
		SecondsOfDay: local.Hour()*3600 + local.Minute()*60 + local.Second(),
		Display:      local.Format(DisplayLayout),
		EpochMillis:  t.UnixMilli(),
	}
}

// System reads the host clock.
type System struct {
	Location *time.Location
}

// Now returns the current reading.
func (s System) Now() Reading {
	return Read(time.Now(), s.Location)
}

// Fixed always returns the same instant. Useful in tests.
type Fixed struct {
	At       time.Time
	Location *time.Location
}

// Now returns the fixed reading.
func (f Fixed) Now() Reading {
	return Read(f.At, f.Location)
}

// FormatSecondsOfDay renders seconds since midnight as a 12-hour time.
func FormatSecondsOfDay(secs int) string {
	t := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(secs) * time.Second)
	return t.Format(DisplayLayout)
}
