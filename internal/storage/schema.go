package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createIdentitiesTable(tx); err != nil {
			return err
		}
		if err := createAliasesTable(tx); err != nil {
			return err
		}
		if err := createAnalysisCacheTable(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Migrations run sequentially as the schema evolves.
	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		// Pre-versioning database; initialize from scratch
		if err := db.initializeSchema(); err != nil {
			return 0, err
		}
		return currentSchemaVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// identities holds one row per canonical identity, scoped per case.
// created_seq records identity creation order within a case, which is the
// deterministic tie-break for similarity matches. superseded_by is set when
// a consolidation replaced this identity; the row itself is never deleted.
func createIdentitiesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			identity_id     TEXT NOT NULL,
			case_id         TEXT NOT NULL,
			canonical_label TEXT NOT NULL,
			created_seq     INTEGER NOT NULL,
			superseded_by   TEXT,
			created_at      TEXT NOT NULL,
			PRIMARY KEY (case_id, identity_id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_identities_case
		ON identities (case_id, created_seq)
	`)
	return err
}

// aliases holds the append-only (platform, alias) -> identity bindings.
// confidence < 1.0 marks a heuristic binding surfaced for manual review.
func createAliasesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS aliases (
			case_id     TEXT NOT NULL,
			platform    TEXT NOT NULL,
			alias       TEXT NOT NULL,
			identity_id TEXT NOT NULL,
			confidence  REAL NOT NULL,
			created_seq INTEGER NOT NULL,
			created_at  TEXT NOT NULL,
			PRIMARY KEY (case_id, platform, alias)
		)
	`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_aliases_identity
		ON aliases (case_id, identity_id)
	`)
	return err
}

// analysis_cache stores compressed Analysis artifacts keyed by the
// fileset/config hash of the run that produced them.
func createAnalysisCacheTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_cache (
			cache_key  TEXT PRIMARY KEY,
			case_id    TEXT NOT NULL,
			version    TEXT NOT NULL,
			payload    BLOB NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}
