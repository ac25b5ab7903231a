package models

import (
	"time"

	"github.com/google/uuid"
)

// Admin is an account that may sign in to the admin dashboard.
type Admin struct {
	// ID is the unique identifier for the admin (UUID format).
	ID string `json:"id"`

	// Email is the login identifier (unique).
	Email string `json:"email"`

	// DisplayName is shown in the dashboard header.
	DisplayName string `json:"displayName"`

	// PasswordHash is the bcrypt hash of the admin's password.
	PasswordHash string `json:"passwordHash"`

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64 `json:"createdAt"`
}

// NewAdmin creates an Admin with a fresh ID and creation time.
func NewAdmin(email, displayName, passwordHash string) *Admin {
	return &Admin{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().Unix(),
	}
}
