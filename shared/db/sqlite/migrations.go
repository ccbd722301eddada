package sqlite

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	up      string
}

// migrations is the ordered list of schema changes. Applied versions are
// recorded in schema_migrations and never re-run.
var migrations = []migration{
	{
		version: 1,
		name:    "create_stations_table",
		up: `
			CREATE TABLE IF NOT EXISTS stations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				price REAL NOT NULL CHECK (price >= 0),
				address TEXT NOT NULL,
				image_ref TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_stations_name ON stations(name);
			CREATE INDEX IF NOT EXISTS idx_stations_price ON stations(price);
		`,
	},
	{
		version: 2,
		name:    "create_images_table",
		up: `
			CREATE TABLE IF NOT EXISTS images (
				key TEXT PRIMARY KEY,
				ref_count INTEGER NOT NULL DEFAULT 0 CHECK (ref_count >= 0),
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_images_unreferenced
			ON images(key)
			WHERE ref_count = 0;
		`,
	},
}

func runMigrations(sqlDB *sql.DB) error {
	_, err := sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion := 0
	err = sqlDB.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := applyMigration(sqlDB, m); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(sqlDB *sql.DB, m migration) error {
	tx, err := sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
	}

	if _, err := tx.Exec(m.up); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}
	return nil
}
