// Package auth verifies admin credentials and issues session tokens.
package auth

import (
	"context"

	"github.com/mmynk/rollcall/internal/models"
)

// Authenticator defines the interface for admin sign-in.
// Only email+password is implemented; the interface keeps the service layer
// independent of the credential type.
type Authenticator interface {
	// Register creates an admin account with the given email and credential.
	Register(ctx context.Context, email, displayName, credential string) (*models.Admin, error)

	// Authenticate verifies the credentials and returns the admin if they match.
	Authenticate(ctx context.Context, email, credential string) (*models.Admin, error)

	// ValidateCredential checks that a credential is acceptable for Register.
	ValidateCredential(credential string) error
}
