// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Migration represents an applied database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migration is a compiled-in schema migration step.
type migration struct {
	version     int
	description string
	sql         string
}

// The schema is small enough to ship compiled in rather than as .sql
// files next to the binary.
var migrations = []migration{
	{
		version:     1,
		description: "create pending_events",
		sql: `
		CREATE TABLE IF NOT EXISTS pending_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			medication_id TEXT NOT NULL CHECK(length(medication_id) > 0),
			status TEXT NOT NULL CHECK(status IN ('taken', 'missed', 'skipped')),
			scheduled_time INTEGER NOT NULL,
			taken_time INTEGER,
			notes TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
	},
	{
		version:     2,
		description: "create retry_requests",
		sql: `
		CREATE TABLE IF NOT EXISTS retry_requests (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			headers TEXT NOT NULL DEFAULT '{}',
			body BLOB,
			queued_at INTEGER NOT NULL
		);`,
	},
	{
		version:     3,
		description: "create cached_responses",
		sql: `
		CREATE TABLE IF NOT EXISTS cached_responses (
			cache_key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			body BLOB NOT NULL,
			stored_at INTEGER NOT NULL
		);`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations in version order.
func (m *Migrator) Up() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedVersions := make(map[int]bool)
	for _, mig := range applied {
		appliedVersions[mig.Version] = true
	}

	pending := make([]migration, 0, len(migrations))
	for _, mig := range migrations {
		if !appliedVersions[mig.version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, mig := range pending {
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", mig.version, mig.description, err)
		}
	}
	return nil
}

// apply runs one migration inside a transaction and records it.
func (m *Migrator) apply(mig migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.sql); err != nil {
		return err
	}

	sum := sha256.Sum256([]byte(mig.sql))
	_, err = tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		mig.version, time.Now().Unix(), mig.description, hex.EncodeToString(sum[:]),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// OpenAndMigrate opens the database under dataDir and brings the schema
// up to date. Most callers want this over Open plus a manual Migrator.
func OpenAndMigrate(dataDir string) (*DB, error) {
	database, err := Open(dataDir)
	if err != nil {
		return nil, err
	}
	migrator := NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
