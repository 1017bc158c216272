package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Owner directory
			CREATE TABLE IF NOT EXISTS owners (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				address TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Monitored assets
			CREATE TABLE IF NOT EXISTS assets (
				id TEXT PRIMARY KEY,
				label TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (owner_id) REFERENCES owners(id) ON DELETE CASCADE
			);

			-- Vulnerability findings per asset
			CREATE TABLE IF NOT EXISTS findings (
				id TEXT PRIMARY KEY,
				asset_id TEXT NOT NULL,
				title TEXT NOT NULL,
				severity TEXT NOT NULL,
				detected_at DATETIME NOT NULL,
				resolved_at DATETIME,
				FOREIGN KEY (asset_id) REFERENCES assets(id) ON DELETE CASCADE
			);

			-- Per-asset reminder escalation state, one row while overdue
			CREATE TABLE IF NOT EXISTS reminder_state (
				asset_id TEXT PRIMARY KEY,
				level INTEGER NOT NULL,
				outdated_since DATETIME NOT NULL,
				last_sent_at DATETIME NOT NULL,
				last_checked_at DATETIME NOT NULL
			);

			-- Per-owner digest opt-in, absence means disabled
			CREATE TABLE IF NOT EXISTS owner_preferences (
				owner_id TEXT PRIMARY KEY,
				digest_enabled INTEGER NOT NULL DEFAULT 0,
				last_digest_at DATETIME,
				updated_at DATETIME NOT NULL
			);

			-- Append-only dispatch audit trail, denormalized at send time
			CREATE TABLE IF NOT EXISTS notification_audit (
				id TEXT PRIMARY KEY,
				asset_id TEXT,
				asset_label TEXT NOT NULL,
				recipient TEXT NOT NULL,
				class TEXT NOT NULL,
				status TEXT NOT NULL,
				error_detail TEXT,
				sent_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_assets_owner ON assets(owner_id);
			CREATE INDEX IF NOT EXISTS idx_findings_asset ON findings(asset_id);
			CREATE INDEX IF NOT EXISTS idx_findings_open ON findings(resolved_at) WHERE resolved_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_findings_detected ON findings(detected_at);
			CREATE INDEX IF NOT EXISTS idx_audit_sent_at ON notification_audit(sent_at);
			CREATE INDEX IF NOT EXISTS idx_audit_recipient ON notification_audit(recipient);
			CREATE INDEX IF NOT EXISTS idx_audit_class ON notification_audit(class);
			CREATE INDEX IF NOT EXISTS idx_audit_status ON notification_audit(status);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
