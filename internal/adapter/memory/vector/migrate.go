package vector

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS collections (
			name       TEXT PRIMARY KEY,
			embedder   TEXT NOT NULL DEFAULT '',
			dimensions INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS points (
			id         TEXT PRIMARY KEY,
			collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			embedding  BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS points_collection ON points(collection, id);
	`
	_, err := db.Exec(schema)
	return err
}
