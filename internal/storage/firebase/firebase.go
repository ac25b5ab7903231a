// Package firebase provides a storage.Backend on the Firebase Realtime Database.
package firebase

import (
	"context"
	"encoding/json"
	"fmt"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"github.com/mmynk/rollcall/internal/storage"
)

// Ensure Store implements storage.Backend
var _ storage.Backend = (*Store)(nil)

// Store talks to a Realtime Database instance through the Admin SDK.
// Push keys are generated by Firebase and are chronologically ordered.
type Store struct {
	client *db.Client
}

// New initializes a Firebase app for databaseURL. credentialsFile may be
// empty, in which case Application Default Credentials are used.
func New(ctx context.Context, databaseURL, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := fb.NewApp(ctx, &fb.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing database client: %w", err)
	}

	return &Store{client: client}, nil
}

// Get reads the subtree at path.
func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.client.NewRef(path).Get(ctx, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// Push stores value under a new Firebase push key.
func (s *Store) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	ref, err := s.client.NewRef(path).Push(ctx, value)
	if err != nil {
		return "", err
	}
	return ref.Key, nil
}

// Set overwrites the subtree at path.
func (s *Store) Set(ctx context.Context, path string, value json.RawMessage) error {
	return s.client.NewRef(path).Set(ctx, value)
}

// Update merges fields into the node at path.
func (s *Store) Update(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return s.client.NewRef(path).Update(ctx, values)
}

// Delete removes the subtree at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.client.NewRef(path).Delete(ctx)
}

// Close is a no-op; the Admin SDK holds no per-client connections.
func (s *Store) Close() error {
	return nil
}
