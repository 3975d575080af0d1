// Package history persists resume positions and startup-latency samples in
// a local SQLite database (pure Go driver, no cgo).
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"learnplay/internal/config"
	"learnplay/internal/media"
)

// Store is the history database.
type Store struct {
	db *sql.DB
}

// OpenDefault opens the database at config.DataPath().
func OpenDefault() (*Store, error) {
	path, err := config.DataPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	// busy_timeout avoids "database locked" errors when a second instance runs
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resume_positions (
		key TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		position REAL NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS startup_latency (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resume_updated ON resume_positions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_latency_recorded ON startup_latency(recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save writes or updates the resume position for entry.Key.
func (s *Store) Save(ctx context.Context, entry media.HistoryEntry) error {
	if entry.Key == "" {
		return errors.New("history entry has no key")
	}
	query := `
	INSERT INTO resume_positions (key, title, position, duration, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		title = excluded.title,
		position = excluded.position,
		duration = excluded.duration,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, entry.Key, entry.Title, entry.Position, entry.Duration, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// Get returns the entry for key. ok is false when none is stored.
func (s *Store) Get(ctx context.Context, key string) (entry media.HistoryEntry, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, title, position, duration FROM resume_positions WHERE key = ?`, key)
	if err := row.Scan(&entry.Key, &entry.Title, &entry.Position, &entry.Duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return media.HistoryEntry{}, false, nil
		}
		return media.HistoryEntry{}, false, fmt.Errorf("reading history: %w", err)
	}
	return entry, true, nil
}

// Load returns all entries, most recently updated first.
func (s *Store) Load(ctx context.Context) ([]media.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, title, position, duration FROM resume_positions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []media.HistoryEntry
	for rows.Next() {
		var e media.HistoryEntry
		if err := rows.Scan(&e.Key, &e.Title, &e.Position, &e.Duration); err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes the entry for key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resume_positions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("removing history: %w", err)
	}
	return nil
}

// Clear deletes every resume position. Latency samples are kept.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resume_positions`); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// RecordLatency appends a startup latency sample.
func (s *Store) RecordLatency(ctx context.Context, sample media.LatencySample) error {
	query := `
	INSERT INTO startup_latency (session_id, title, source_kind, latency_ms, recorded_at)
	VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, sample.SessionID, sample.Title, sample.Kind.String(), sample.Millis, sample.Recorded); err != nil {
		return fmt.Errorf("recording latency: %w", err)
	}
	return nil
}

// LatencyRecord is a stored latency sample.
type LatencyRecord struct {
	SessionID  string
	Title      string
	SourceKind string
	Millis     int64
	Recorded   time.Time
}

// RecentLatency returns up to limit samples, newest first.
func (s *Store) RecentLatency(ctx context.Context, limit int) ([]LatencyRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT session_id, title, source_kind, latency_ms, recorded_at
	FROM startup_latency
	ORDER BY recorded_at DESC, id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading latency: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LatencyRecord
	for rows.Next() {
		var r LatencyRecord
		var recorded int64
		if err := rows.Scan(&r.SessionID, &r.Title, &r.SourceKind, &r.Millis, &recorded); err != nil {
			return nil, fmt.Errorf("reading latency: %w", err)
		}
		r.Recorded = time.Unix(recorded, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FormatForDisplay creates display lines for history entries.
func FormatForDisplay(entries []media.HistoryEntry) []string {
	var items []string
	for _, e := range entries {
		display := e.Title
		if display == "" {
			display = e.Key
		}
		if e.Position > 0 {
			pct := 0.0
			if e.Duration > 0 {
				pct = (e.Position / e.Duration) * 100
			}
			display += fmt.Sprintf(" [%.0f%%]", pct)
		}
		items = append(items, display)
	}
	return items
}
