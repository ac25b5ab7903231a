package models

// StaffMember represents one person on the roster.
type StaffMember struct {
	// ID is the store-assigned key under "staff/".
	ID string `json:"-"`

	// Name is the display name shown on the check-in form.
	Name string `json:"name" yaml:"name"`

	// Email is used as the de-duplication key for the roster.
	Email string `json:"email" yaml:"email"`

	// Telephone is the contact number.
	Telephone string `json:"telephone" yaml:"telephone"`

	// Role is the staff member's position (may be empty for seeded entries).
	Role string `json:"role" yaml:"role"`
}
