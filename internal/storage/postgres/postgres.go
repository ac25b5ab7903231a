// Package postgres provides a Postgres-backed storage.Backend using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/rollcall/internal/storage"
)

// Ensure Store implements storage.Backend
var _ storage.Backend = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    path TEXT PRIMARY KEY,
    parent TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent, key);
`

// Store implements storage.Backend on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}
	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Get retrieves the value at path, or an object of its direct children.
func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var value string
	err := s.pool.QueryRow(ctx, "SELECT value FROM nodes WHERE path = $1", path).Scan(&value)
	if err == nil {
		return json.RawMessage(value), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	rows, err := s.pool.Query(ctx, "SELECT key, value FROM nodes WHERE parent = $1 ORDER BY key", path)
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
func (s *Store) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	key := storage.NewKey()
	if err := s.Set(ctx, storage.Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Set replaces the subtree at path with value.
func (s *Store) Set(ctx context.Context, path string, value json.RawMessage) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := deleteTree(ctx, tx, path); err != nil {
			return err
		}
		return upsert(ctx, tx, path, value)
	})
}

// Update merges fields into the object at path.
func (s *Store) Update(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		obj := make(map[string]json.RawMessage)

		var existing string
		err := tx.QueryRow(ctx, "SELECT value FROM nodes WHERE path = $1 FOR UPDATE", path).Scan(&existing)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
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
		return upsert(ctx, tx, path, merged)
	})
}

// Delete removes path and its descendants.
func (s *Store) Delete(ctx context.Context, path string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return deleteTree(ctx, tx, path)
	})
}

func upsert(ctx context.Context, tx pgx.Tx, path string, value json.RawMessage) error {
	parent, key := storage.SplitPath(path)
	_, err := tx.Exec(ctx,
		`INSERT INTO nodes (path, parent, key, value, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		path, parent, key, string(value), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write node: %w", err)
	}
	return nil
}

func deleteTree(ctx context.Context, tx pgx.Tx, path string) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM nodes WHERE path = $1 OR path LIKE $2 ESCAPE '\'`,
		path, likePrefix(path),
	)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

func likePrefix(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(path) + "/%"
}
