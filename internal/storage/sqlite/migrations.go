package sqlite

import "database/sql"

// schema holds the key-path table. Each row is one JSON value addressed by
// its full path; parent and key are denormalized so child listings use an index.
// These run on startup to ensure tables exist.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    path TEXT PRIMARY KEY,
    parent TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent, key);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
