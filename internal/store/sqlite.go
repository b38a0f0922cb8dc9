// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and holds shared row helpers

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL,
			roots_json    TEXT NOT NULL,
			data_json     TEXT,
			created_at    TEXT NOT NULL,

			CHECK (role IN ('standard', 'privileged'))
		);

		CREATE TABLE IF NOT EXISTS types (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL UNIQUE,
			description       TEXT NOT NULL DEFAULT '',
			parents_json      TEXT,
			static_props_json TEXT,
			dynamic_props_json TEXT,
			created_at        TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS items (
			id              TEXT PRIMARY KEY,
			type_id         TEXT NOT NULL,
			name            TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			properties_json TEXT,
			value_json      TEXT,
			value_ts        INTEGER,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_items_type ON items(type_id);

		CREATE TABLE IF NOT EXISTS rules (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			name       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,

			UNIQUE(kind, name),
			CHECK (kind IN ('reactive', 'deliberative'))
		);

		CREATE TABLE IF NOT EXISTS readings (
			item_id   TEXT NOT NULL,
			ts        INTEGER NOT NULL,
			data_json TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_readings_item_ts ON readings(item_id, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// checkAffected turns a zero-row UPDATE/DELETE into ErrNotFound.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// encodeJSON serializes v for a TEXT column. Nil maps and slices become NULL.
func encodeJSON(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if val == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeJSON deserializes a nullable TEXT column into dst. NULL leaves dst untouched.
func decodeJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
