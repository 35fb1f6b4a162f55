// Package journal records workspace activity in an embedded SQLite database.
//
// Every committed change event and every reference-change notification is
// appended as one row, so a session can be inspected after the fact with
// `psync journal`.
//
// Architecture:
//   - Database file: .psync/journal.db (configurable)
//   - WAL mode: the CLI can read while a watch session writes
//   - Schema: change_events, reference_changes
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/projsync/internal/workspace"
)

// Config holds configuration for a journal.
type Config struct {
	// Path is the database file.
	Path string

	// Logger for write failures that cannot be returned to a caller.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path:   filepath.Join(".psync", "journal.db"),
		Logger: log.New(os.Stderr, "[journal] ", log.LstdFlags),
	}
}

// DB is an open journal.
type DB struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open opens the journal at config.Path, creating the file and its schema if
// needed. The caller must call Close.
func Open(config *Config) (*DB, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.Path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: config.Path, logger: config.Logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the database.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Printf("failed to checkpoint WAL: %v", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. It is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS change_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		project_id TEXT,
		document_id TEXT,
		version INTEGER NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reference_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_change_events_kind ON change_events(kind);
	CREATE INDEX IF NOT EXISTS idx_change_events_project ON change_events(project_id);
	CREATE INDEX IF NOT EXISTS idx_reference_changes_path ON reference_changes(path);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Entry is one recorded change event.
type Entry struct {
	Seq        int64
	Kind       string
	ProjectID  string
	DocumentID string
	Version    int64
	RecordedAt time.Time
}

// ReferenceChange is one recorded reference-change notification.
type ReferenceChange struct {
	Seq        int64
	Path       string
	RecordedAt time.Time
}

// RecordEvent appends e.
func (db *DB) RecordEvent(ctx context.Context, e workspace.ChangeEvent) error {
	var version int64
	if e.NewSolution != nil {
		version = e.NewSolution.Version()
	}
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO change_events (kind, project_id, document_id, version, recorded_at)
	VALUES (?, ?, ?, ?, ?)`,
		e.Kind.String(),
		projectIDString(e.ProjectID),
		documentIDString(e.DocumentID),
		version,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", e.Kind, err)
	}
	return nil
}

// RecordReferenceChange appends a notification that the file at path changed.
func (db *DB) RecordReferenceChange(ctx context.Context, path string) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO reference_changes (path, recorded_at) VALUES (?, ?)`,
		path, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record reference change for %s: %w", path, err)
	}
	return nil
}

// Events returns the most recent change events, oldest first. A limit of
// zero or less returns all of them.
func (db *DB) Events(ctx context.Context, limit int) ([]Entry, error) {
	query := `
	SELECT seq, kind, COALESCE(project_id, ''), COALESCE(document_id, ''), version, recorded_at
	FROM (SELECT * FROM change_events ORDER BY seq DESC LIMIT ?)
	ORDER BY seq`
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query change events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt string
		if err := rows.Scan(&e.Seq, &e.Kind, &e.ProjectID, &e.DocumentID, &e.Version, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReferenceChanges returns every recorded reference-change notification,
// oldest first.
func (db *DB) ReferenceChanges(ctx context.Context) ([]ReferenceChange, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT seq, path, recorded_at FROM reference_changes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference changes: %w", err)
	}
	defer rows.Close()

	var changes []ReferenceChange
	for rows.Next() {
		var c ReferenceChange
		var recordedAt string
		if err := rows.Scan(&c.Seq, &c.Path, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reference change: %w", err)
		}
		c.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// KindCounts returns the number of recorded events per change kind.
func (db *DB) KindCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT kind, COUNT(*) FROM change_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count change events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func projectIDString(id workspace.ProjectID) sql.NullString {
	if id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func documentIDString(id workspace.DocumentID) sql.NullString {
	if id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
