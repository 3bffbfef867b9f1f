package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are kept as the RFC 3339 strings clients send, so the wire format round-trips unchanged.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		location        TEXT NOT NULL DEFAULT '',
		date_time       TEXT NOT NULL DEFAULT '',
		added_at        TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'In Progress',
		file            JSONB,
		location_coords JSONB,
		notification_id TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS task_logs (
		id         TEXT PRIMARY KEY,
		timestamp  TEXT NOT NULL,
		action     TEXT NOT NULL,
		task_id    TEXT NOT NULL,
		task_title TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS task_logs_task_id_idx ON task_logs (task_id)`,
}

// Migrate creates the tables when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema step %d: %w", i, err)
		}
	}
	return nil
}
