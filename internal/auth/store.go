package auth

import (
	"context"
	"errors"

	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/storage"
)

// Store is the part of the gateway used for admin accounts.
type Store interface {
	Read(ctx context.Context, path string) (storage.Snapshot, error)
	Set(ctx context.Context, path string, value any) error
}

// AdminStore keeps admin accounts under "admins/{id}".
type AdminStore struct {
	store Store
}

// Ensure AdminStore implements AdminStorage
var _ AdminStorage = (*AdminStore)(nil)

// NewAdminStore creates an AdminStore.
func NewAdminStore(store Store) *AdminStore {
	return &AdminStore{store: store}
}

// CreateAdmin writes the admin under its id.
func (s *AdminStore) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	if admin.ID == "" {
		return errors.New("admin id is required")
	}
	return s.store.Set(ctx, storage.Join(storage.AdminsPath, admin.ID), admin)
}

// GetAdminByEmail scans the admin accounts for an exact email match.
func (s *AdminStore) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	snap, err := s.store.Read(ctx, storage.AdminsPath)
	if err != nil {
		return nil, err
	}
	admins, err := storage.DecodeChildren(snap, func(a *models.Admin, key string) { a.ID = key })
	if err != nil {
		return nil, err
	}
	for i := range admins {
		if admins[i].Email == email {
			return &admins[i], nil
		}
	}
	return nil, ErrAdminNotFound
}

// GetAdminByID reads one admin account.
func (s *AdminStore) GetAdminByID(ctx context.Context, id string) (*models.Admin, error) {
	snap, err := s.store.Read(ctx, storage.Join(storage.AdminsPath, id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, ErrAdminNotFound
	}
	var admin models.Admin
	if err := snap.Decode(&admin); err != nil {
		return nil, err
	}
	admin.ID = id
	return &admin, nil
}
