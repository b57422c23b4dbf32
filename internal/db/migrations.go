package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                           INTEGER PRIMARY KEY,
    name                         TEXT NOT NULL,
    handle                       TEXT NOT NULL,
    password_hash                TEXT NOT NULL,
    postcode                     TEXT,
    address_line_1               TEXT,
    lat                          REAL,
    lng                          REAL,
    avatar_path                  TEXT,
    default_pickup_image_path    TEXT,
    default_pickup_instructions  TEXT,
    default_payment_instructions TEXT,
    created_at                   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at                   DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_handle_active
    ON users(handle) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS runs (
    id                   INTEGER PRIMARY KEY,
    host_id              INTEGER NOT NULL REFERENCES users(id),
    store_name           TEXT NOT NULL,
    status               TEXT NOT NULL DEFAULT 'prepping'
                         CHECK (status IN ('prepping', 'live', 'heading_back', 'arrived', 'completed')),
    expires_at           DATETIME NOT NULL,
    lat                  REAL NOT NULL,
    lng                  REAL NOT NULL,
    pickup_image_path    TEXT,
    pickup_instructions  TEXT,
    payment_instructions TEXT,
    is_taking_requests   INTEGER NOT NULL DEFAULT 0,
    created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at           DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_location ON runs(lat, lng);
CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(host_id);

CREATE TABLE IF NOT EXISTS items (
    id           INTEGER PRIMARY KEY,
    run_id       INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    title        TEXT NOT NULL,
    type         TEXT NOT NULL CHECK (type IN ('bulk_split', 'personal_request')),
    unit_cost    TEXT NOT NULL DEFAULT '0',
    units_total  INTEGER NOT NULL CHECK (units_total >= 1),
    units_filled INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (units_filled >= 0 AND units_filled <= units_total)
);

CREATE INDEX IF NOT EXISTS idx_items_run ON items(run_id);

CREATE TABLE IF NOT EXISTS commitments (
    id             INTEGER PRIMARY KEY,
    item_id        INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    user_id        INTEGER NOT NULL REFERENCES users(id),
    quantity       INTEGER NOT NULL CHECK (quantity >= 1),
    total_amount   TEXT NOT NULL DEFAULT '0',
    status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'rejected')),
    payment_status TEXT NOT NULL DEFAULT 'unpaid' CHECK (payment_status IN ('unpaid', 'paid_marked', 'confirmed')),
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_commitments_item ON commitments(item_id);
CREATE INDEX IF NOT EXISTS idx_commitments_user ON commitments(user_id);

CREATE TABLE IF NOT EXISTS activities (
    id         INTEGER PRIMARY KEY,
    run_id     INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    user_id    INTEGER REFERENCES users(id) ON DELETE SET NULL,
    type       TEXT NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_activities_run ON activities(run_id, id);

CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY,
    run_id     INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    user_id    INTEGER REFERENCES users(id) ON DELETE SET NULL,
    body       TEXT NOT NULL,
    is_system  INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id, id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: activity feed reads filter by type for the profile page.
	`CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(run_id, type)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Migrate runs the database schema migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
