// Package sqlite provides a SQLite-backed implementation of the storage.Backend interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/rollcall/internal/storage"
)

// Ensure SQLiteStore implements storage.Backend
var _ storage.Backend = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Backend using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		// Create parent directory if it doesn't exist
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get retrieves the value at path, or an object of its direct children.
func (s *SQLiteStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM nodes WHERE path = ?",
		path,
	).Scan(&value)
	if err == nil {
		return json.RawMessage(value), nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM nodes WHERE parent = ? ORDER BY key",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	children := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, child string
		if err := rows.Scan(&key, &child); err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children[key] = json.RawMessage(child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate children: %w", err)
	}

	if len(children) == 0 {
		return nil, nil
	}
	return json.Marshal(children)
}

// Push stores value under a newly generated child key of path.
func (s *SQLiteStore) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	key := storage.NewKey()
	if err := s.Set(ctx, storage.Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Set replaces the subtree at path with value.
func (s *SQLiteStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteTree(ctx, tx, path); err != nil {
		return err
	}
	if err := upsert(ctx, tx, path, value); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update merges fields into the object at path.
func (s *SQLiteStore) Update(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	obj := make(map[string]json.RawMessage)
	var existing string
	err = tx.QueryRowContext(ctx, "SELECT value FROM nodes WHERE path = ?", path).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to get node: %w", err)
	default:
		if err := json.Unmarshal([]byte(existing), &obj); err != nil {
			return fmt.Errorf("value at %q is not an object: %w", path, err)
		}
	}

	for k, v := range fields {
		obj[k] = v
	}
	merged, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode merged value: %w", err)
	}
	if err := upsert(ctx, tx, path, merged); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes path and its descendants.
func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteTree(ctx, tx, path); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, path string, value json.RawMessage) error {
	parent, key := storage.SplitPath(path)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (path, parent, key, value, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, parent, key, string(value), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write node: %w", err)
	}
	return nil
}

func deleteTree(ctx context.Context, tx *sql.Tx, path string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, likePrefix(path),
	)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

// likePrefix returns a LIKE pattern matching every descendant of path.
func likePrefix(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(path) + "/%"
}
