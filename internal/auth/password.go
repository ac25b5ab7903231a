package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/rollcall/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
	ErrAdminNotFound      = errors.New("admin not found")
)

// AdminStorage defines the persistence operations the authenticator needs.
type AdminStorage interface {
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
	GetAdminByID(ctx context.Context, id string) (*models.Admin, error)
}

// PasswordAuthenticator implements password sign-in using bcrypt hashes.
type PasswordAuthenticator struct {
	storage AdminStorage
	cost    int
}

// NewPasswordAuthenticator creates a password authenticator.
func NewPasswordAuthenticator(storage AdminStorage) *PasswordAuthenticator {
	return &PasswordAuthenticator{storage: storage, cost: bcrypt.DefaultCost}
}

// WithCost sets the bcrypt cost used for new hashes.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

// ValidateCredential checks the minimum password length.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// Register creates an admin account with a hashed password.
func (a *PasswordAuthenticator) Register(ctx context.Context, email, displayName, credential string) (*models.Admin, error) {
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	existing, err := a.storage.GetAdminByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrEmailExists
	case err != nil && !errors.Is(err, ErrAdminNotFound):
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := models.NewAdmin(email, displayName, string(hashed))
	if err := a.storage.CreateAdmin(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	return admin, nil
}

// Authenticate verifies the email and password.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (*models.Admin, error) {
	admin, err := a.storage.GetAdminByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrAdminNotFound) {
			slog.Error("Admin lookup failed", "error", err)
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// EnsureAdmin registers the account if no admin with that email exists yet.
// It reports whether an account was created.
func EnsureAdmin(ctx context.Context, a *PasswordAuthenticator, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	_, err := a.Register(ctx, email, "Administrator", password)
	switch {
	case errors.Is(err, ErrEmailExists):
		return false, nil
	case err != nil:
		return false, err
	}
	slog.Info("Admin account created", "email", normalizeEmail(email))
	return true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
