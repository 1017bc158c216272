package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	reminders   *sqliteReminderRepo
	preferences *sqlitePreferenceRepo
	audit       *sqliteAuditRepo
	assets      *sqliteAssetRepo
	owners      *sqliteOwnerRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	s.reminders = &sqliteReminderRepo{db: db}
	s.preferences = &sqlitePreferenceRepo{db: db}
	s.audit = &sqliteAuditRepo{db: db}
	s.assets = &sqliteAssetRepo{db: db}
	s.owners = &sqliteOwnerRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Reminders returns the reminder state repository.
func (s *SQLiteStorage) Reminders() ReminderRepository {
	return s.reminders
}

// Preferences returns the owner preference repository.
func (s *SQLiteStorage) Preferences() PreferenceRepository {
	return s.preferences
}

// Audit returns the audit record repository.
func (s *SQLiteStorage) Audit() AuditRepository {
	return s.audit
}

// Assets returns the asset/finding source repository.
func (s *SQLiteStorage) Assets() AssetRepository {
	return s.assets
}

// Owners returns the owner directory repository.
func (s *SQLiteStorage) Owners() OwnerRepository {
	return s.owners
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
