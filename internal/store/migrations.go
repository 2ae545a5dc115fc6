package store

import (
	"database/sql"
	"fmt"
)

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside bootstrap transaction — meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: payload hash lookup index for result reuse.
	// Gated by its own meta flag so it stays idempotent across restarts.
	if err := s.migratePayloadHashIndex(); err != nil {
		return fmt.Errorf("migrating payload hash index: %w", err)
	}

	return nil
}

// runBootstrapDDL creates the full schema inside a single transaction.
func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			span_start TEXT NOT NULL,
			span_end TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			variant TEXT NOT NULL,
			snapshot_count INTEGER NOT NULL DEFAULT 0,
			transition_count INTEGER NOT NULL DEFAULT 0,
			users_lost_total INTEGER NOT NULL DEFAULT 0,
			report TEXT NOT NULL DEFAULT '',
			result_json TEXT NOT NULL DEFAULT '{}'
		)`,

		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_variant ON analyses(variant)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration transaction: %w", err)
	}

	return nil
}

// seedMeta writes the initial metadata rows. INSERT OR IGNORE keeps
// the original values if the database already has them.
func (s *SQLiteStore) seedMeta() error {
	seeds := []string{
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', '1')`,
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('created_at', datetime('now'))`,
	}
	for _, stmt := range seeds {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("seeding meta: %w", err)
		}
	}
	return nil
}

// migratePayloadHashIndex adds the payload hash lookup index used when
// an identical payload is analyzed twice.
func (s *SQLiteStore) migratePayloadHashIndex() error {
	enabled, err := s.isMetaFlagEnabled("payload_hash_index_v1")
	if err != nil {
		return err
	}
	if enabled {
		return nil
	}

	if _, err := s.db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_analyses_payload_hash ON analyses(payload_hash)`,
	); err != nil {
		return fmt.Errorf("creating payload hash index: %w", err)
	}

	return s.setMetaFlag("payload_hash_index_v1")
}

// isMetaFlagEnabled reports whether a meta flag is set to 'true'. A
// missing meta table or row both read as false so migrations can run
// against a fresh database.
func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var tableName string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='meta'`,
	).Scan(&tableName)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking meta table: %w", err)
	}

	var value string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading meta flag %q: %w", key, err)
	}
	return value == "true", nil
}

// setMetaFlag marks a meta flag as enabled.
func (s *SQLiteStore) setMetaFlag(key string) error {
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value, updated_at) VALUES (?, 'true', datetime('now'))`,
		key,
	); err != nil {
		return fmt.Errorf("setting meta flag %q: %w", key, err)
	}
	return nil
}
