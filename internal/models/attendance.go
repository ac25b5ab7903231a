package models

import "time"

// AttendanceRecord is a single check-in. Records are immutable once written.
type AttendanceRecord struct {
	// ID is the store-assigned key under "attendance/".
	ID string `json:"-"`

	// StaffID references the StaffMember key at the time of check-in.
	StaffID string `json:"staffId"`

	// StaffName is a snapshot of the staff member's name at check-in.
	// It is not updated if the staff member is renamed later.
	StaffName string `json:"staffName"`

	// CheckInDate is the UTC calendar date of Timestamp (YYYY-MM-DD).
	CheckInDate string `json:"checkInDate"`

	// CheckInTime is the number of seconds since local midnight.
	CheckInTime int `json:"checkInTime"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Accuracy is the fix accuracy in metres, rounded.
	Accuracy int `json:"accuracy"`

	// Timestamp is the check-in instant in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Time returns Timestamp as a time.Time.
func (r AttendanceRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}
