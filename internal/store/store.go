// Package store provides SQLite-backed persistence for the enriched-event
// snapshot and the two user settings. The snapshot is a single JSON
// document replaced atomically in a transaction per engine run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"leavetimed/internal/model"
)

// ErrNoSnapshot is returned by ReadSnapshot when no snapshot has ever been
// written (or it was cleared).
var ErrNoSnapshot = errors.New("store: no snapshot")

const (
	settingAlertsEnabled = "alerts_enabled"
	settingBufferMinutes = "buffer_minutes"
)

// Store provides access to the leavetimed SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a Store at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		events TEXT NOT NULL,
		written_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WriteSnapshot replaces the persisted snapshot with events, stamped now.
// Full replace, never a merge.
func (s *Store) WriteSnapshot(ctx context.Context, events []model.EnrichedEvent) error {
	if events == nil {
		events = []model.EnrichedEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot (id, events, written_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET events = excluded.events, written_at = excluded.written_at`,
		string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return tx.Commit()
}

// ReadSnapshot returns the persisted snapshot, or ErrNoSnapshot.
func (s *Store) ReadSnapshot(ctx context.Context) (model.Snapshot, error) {
	var (
		eventsJSON string
		writtenAt  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT events, written_at FROM snapshot WHERE id = 1`).Scan(&eventsJSON, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var events []model.EnrichedEvent
	if err := json.Unmarshal([]byte(eventsJSON), &events); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, writtenAt)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("parse snapshot timestamp: %w", err)
	}
	return model.Snapshot{Events: events, WrittenAt: ts}, nil
}

// ClearSnapshot removes the persisted snapshot entirely.
func (s *Store) ClearSnapshot(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshot WHERE id = 1`)
	return err
}

// AlertsEnabled returns the stored alerts toggle, defaulting to def when
// never set.
func (s *Store) AlertsEnabled(ctx context.Context, def bool) (bool, error) {
	v, err := s.setting(ctx, settingAlertsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return v == "1", nil
}

func (s *Store) SetAlertsEnabled(ctx context.Context, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return s.setSetting(ctx, settingAlertsEnabled, v)
}

// BufferMinutes returns the stored buffer, defaulting to def when never set.
func (s *Store) BufferMinutes(ctx context.Context, def int) (int, error) {
	v, err := s.setting(ctx, settingBufferMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("decode buffer_minutes: %w", err)
	}
	return n, nil
}

func (s *Store) SetBufferMinutes(ctx context.Context, minutes int) error {
	if minutes < 0 {
		return errors.New("store: buffer minutes must be >= 0")
	}
	return s.setSetting(ctx, settingBufferMinutes, strconv.Itoa(minutes))
}

func (s *Store) setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	return v, err
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}
