package service

import (
	"github.com/mmynk/rollcall/internal/checkin"
	"github.com/mmynk/rollcall/internal/clock"
	"github.com/mmynk/rollcall/internal/geo"
	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/report"
	"github.com/mmynk/rollcall/internal/session"
)

// Service names as they appear in procedure routes.
const (
	CheckInServiceName    = "CheckInService"
	AuthServiceName       = "AuthService"
	StaffServiceName      = "StaffService"
	AttendanceServiceName = "AttendanceService"
)

// Staff is a roster entry on the wire.
type Staff struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
	Role      string `json:"role"`
}

func staffFromModel(s models.StaffMember) Staff {
	return Staff{ID: s.ID, Name: s.Name, Email: s.Email, Telephone: s.Telephone, Role: s.Role}
}

func staffList(staff []models.StaffMember) []Staff {
	out := make([]Staff, len(staff))
	for i, s := range staff {
		out[i] = staffFromModel(s)
	}
	return out
}

// ListStaffRequest searches the roster by name or email.
type ListStaffRequest struct {
	Search string `json:"search"`
}

// ListStaffResponse is a roster page.
type ListStaffResponse struct {
	Staff []Staff `json:"staff"`
	Total int     `json:"total"`

	// LocationOptions are the device query options for the check-in form.
	LocationOptions *geo.Options `json:"locationOptions,omitempty"`
}

// KioskRequest identifies the check-in client.
type KioskRequest struct {
	KioskID string `json:"kioskId"`
}

// SubmitRequest is a check-in with the device's location result.
type SubmitRequest struct {
	KioskID  string     `json:"kioskId"`
	StaffID  string     `json:"staffId"`
	Location geo.Report `json:"location"`
}

// SubmitResponse is the success receipt.
type SubmitResponse struct {
	Receipt checkin.Receipt `json:"receipt"`
}

// AcknowledgeResponse reports whether an error state was dismissed.
type AcknowledgeResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// LoginRequest carries admin credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Admin is the signed-in account on the wire.
type Admin struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// LoginResponse returns the bearer token and the inactivity thresholds.
type LoginResponse struct {
	Token            string `json:"token"`
	Admin            Admin  `json:"admin"`
	WarnAfterSeconds int    `json:"warnAfterSeconds"`
	TimeoutSeconds   int    `json:"timeoutSeconds"`
}

// SessionResponse is the current session countdown.
type SessionResponse struct {
	Session session.Status `json:"session"`
}

// AddStaffRequest is the add-staff form.
type AddStaffRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
	Role      string `json:"role"`
}

// DeleteRequest names one entry to delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// CountResponse reports how many entries a bulk operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// Record is an attendance record on the wire.
type Record struct {
	ID          string  `json:"id"`
	StaffID     string  `json:"staffId"`
	StaffName   string  `json:"staffName"`
	CheckInDate string  `json:"checkInDate"`
	CheckInTime int     `json:"checkInTime"`
	TimeDisplay string  `json:"timeDisplay"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Accuracy    int     `json:"accuracy"`
	Timestamp   int64   `json:"timestamp"`
	MapURL      string  `json:"mapUrl"`
}

func recordFromModel(r models.AttendanceRecord) Record {
	return Record{
		ID:          r.ID,
		StaffID:     r.StaffID,
		StaffName:   r.StaffName,
		CheckInDate: r.CheckInDate,
		CheckInTime: r.CheckInTime,
		TimeDisplay: clock.FormatSecondsOfDay(r.CheckInTime),
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Accuracy:    r.Accuracy,
		Timestamp:   r.Timestamp,
		MapURL:      geo.MapURL(r.Latitude, r.Longitude),
	}
}

// ListAttendanceRequest filters the attendance list.
type ListAttendanceRequest struct {
	Filter report.Filter `json:"filter"`
}

// ListAttendanceResponse is the filtered list with its summary.
type ListAttendanceResponse struct {
	Records []Record       `json:"records"`
	Summary report.Summary `json:"summary"`
}

// AnalyticsResponse is the dashboard analytics over all records.
type AnalyticsResponse struct {
	Summary    report.Summary `json:"summary"`
	TopStaff   []report.Count `json:"topStaff"`
	RecentDays []report.Count `json:"recentDays"`
}
