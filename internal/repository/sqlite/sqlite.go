// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary as a single file.
// No separate database server to install or manage, and every write is a real
// ACID transaction. That is exactly what a playlist store needs: two requests
// from the same user can no longer overwrite each other's changes.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means a C compiler and painful cross-compiles.
// modernc.org/sqlite is a pure Go translation of SQLite. No C compiler needed.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Tx      : a transaction
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
//
// TIMESTAMPS:
// Every time column is an INTEGER holding Unix milliseconds. That is the
// format the legacy JSON documents used, it sorts correctly, and it avoids
// driver-specific DATETIME parsing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named "sqlite".
	// We also use its Error type to recognise constraint violations, hence the alias.
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
// One *DB implements UserRepository, SessionRepository and PlaylistRepository.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// connPragmas run on every connection the driver opens, so a connection
// replaced by database/sql comes back with the same settings.
//
//   - journal_mode(WAL): readers proceed while a write is in progress
//   - foreign_keys(1): deleting a playlist relies on ON DELETE CASCADE
//   - busy_timeout(5000): wait for another process's write lock instead of
//     failing with SQLITE_BUSY
var connPragmas = []string{"journal_mode(WAL)", "foreign_keys(1)", "busy_timeout(5000)"}

// dsn appends connPragmas to dbPath as _pragma query parameters.
func dsn(dbPath string) string {
	var b strings.Builder
	b.WriteString(dbPath)
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	for _, p := range connPragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/mixtape.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// ONE CONNECTION:
	// SQLite allows a single writer at a time anyway. Pinning the pool to one
	// connection turns concurrent writers into a queue inside database/sql
	// instead of SQLITE_BUSY errors, and keeps a ":memory:" database alive
	// (each new connection to ":memory:" would see an empty database).
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every start.
// Later phases that change an existing table go through addColumnIfNotExists.
func (db *DB) migrate() error {
	// Phase 1: accounts and sessions
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL,
			username_key  TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			first_name    TEXT NOT NULL DEFAULT '',
			image_url     TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			username   TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			image_url  TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating user tables: %w", err)
	}

	// Phase 2: playlists and their items.
	// name_key is the lower-cased trimmed name; the UNIQUE pair makes
	// "Road Trip" and "road trip" the same playlist for one owner.
	// items.ref holds the videoId for videos and the mp3Id for audio, and the
	// items.id AUTOINCREMENT gives the insertion order.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS playlists (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			name_key   TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (owner_id, name_key)
		);
		CREATE INDEX IF NOT EXISTS idx_playlists_owner ON playlists(owner_id, created_at);

		CREATE TABLE IF NOT EXISTS items (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			playlist_id   TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
			kind          TEXT NOT NULL CHECK (kind IN ('video', 'mp3')),
			ref           TEXT NOT NULL,
			title         TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			file_url      TEXT NOT NULL DEFAULT '',
			rating        INTEGER NOT NULL DEFAULT 0 CHECK (rating BETWEEN 0 AND 5),
			added_at      INTEGER NOT NULL,
			UNIQUE (playlist_id, kind, ref)
		);
		CREATE INDEX IF NOT EXISTS idx_items_video ON items(kind, ref);
	`)
	if err != nil {
		return fmt.Errorf("creating playlist tables: %w", err)
	}

	// Phase 3: GitHub sign-in. NULL means "no GitHub account linked";
	// SQLite lets many rows hold NULL in a UNIQUE index.
	if err := db.addColumnIfNotExists("users", "github_id", "INTEGER"); err != nil {
		return fmt.Errorf("adding github_id to users: %w", err)
	}
	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id);
	`)
	if err != nil {
		return fmt.Errorf("creating users github_id index: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it is safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// withTx runs fn inside a transaction. fn's error (or a failed commit)
// rolls everything back.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isPrimaryKeyViolation reports whether err came from a duplicate primary key.
func isPrimaryKeyViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// stamp returns the current time truncated to what the database stores,
// so the value handed back to callers equals what a later read returns.
func (db *DB) stamp() time.Time {
	return fromMillis(toMillis(db.now()))
}

// stampOr keeps a caller-supplied time (the legacy importer carries the
// original timestamps over) and stamps the zero time with now.
func (db *DB) stampOr(t time.Time) time.Time {
	if t.IsZero() {
		return db.stamp()
	}
	return fromMillis(toMillis(t))
}
