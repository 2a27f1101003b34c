package database

import (
	"context"
	"fmt"
)

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS hooks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT,
			event TEXT NOT NULL,
			target TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hooks_event_owner ON hooks (event, owner)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS hooks (
			id BIGSERIAL PRIMARY KEY,
			owner TEXT,
			event VARCHAR(64) NOT NULL,
			target VARCHAR(255) NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hooks_event_owner ON hooks (event, owner)`,
	},
}

// Migrate creates the hooks table. Statements are idempotent.
func Migrate(ctx context.Context, db *DB) error {
	statements, ok := schemas[db.Driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", db.Driver)
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i+1, err)
		}
	}
	return nil
}
