package repository

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// IsUniqueViolation reports whether err is a UNIQUE constraint failure, so
// callers can turn an index backstop into a domain conflict.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			source_system TEXT NOT NULL,
			isin TEXT NOT NULL,
			instrument TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			owner_name TEXT,
			quantity REAL NOT NULL,
			notional_value REAL NOT NULL,
			ingested_at DATETIME NOT NULL,
			PRIMARY KEY (source_system, owner_id, isin)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_source ON positions(source_system)`,

		`CREATE TABLE IF NOT EXISTS breaks (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			owner_name TEXT,
			instrument TEXT NOT NULL,
			isin TEXT NOT NULL,
			reference_qty REAL NOT NULL,
			comparison_qty REAL NOT NULL,
			qty_variance REAL NOT NULL,
			value_variance REAL NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			detected_at DATETIME NOT NULL,
			resolved_at DATETIME
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_breaks_open_position
			ON breaks(owner_id, isin) WHERE status = 'open'`,
		`CREATE INDEX IF NOT EXISTS idx_breaks_status ON breaks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_breaks_severity ON breaks(severity)`,

		`CREATE TABLE IF NOT EXISTS exceptions (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			description TEXT,
			break_id TEXT UNIQUE,
			trade_id TEXT,
			assigned_to TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			sla_minutes INTEGER NOT NULL,
			root_cause TEXT,
			resolution TEXT,
			resolved_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exceptions_status ON exceptions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_exceptions_severity ON exceptions(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_exceptions_category ON exceptions(category)`,

		`CREATE TABLE IF NOT EXISTS authorization_requests (
			id TEXT PRIMARY KEY,
			subject_type TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			module TEXT NOT NULL,
			action TEXT NOT NULL,
			maker TEXT NOT NULL,
			status TEXT NOT NULL,
			comments TEXT,
			rejection_reason TEXT,
			checked_by TEXT,
			payload TEXT,
			submitted_at DATETIME NOT NULL,
			decided_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_requests_status ON authorization_requests(status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_auth_requests_active_subject
			ON authorization_requests(subject_type, subject_id) WHERE status = 'pending_approval'`,
		`CREATE INDEX IF NOT EXISTS idx_auth_requests_maker ON authorization_requests(maker)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			instruction_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			isin TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_instruction ON trades(instruction_id)`,

		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			from_status TEXT,
			to_status TEXT,
			detail TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_events(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
