// Package history keeps an append-only log of room activity in SQLite:
// variable changes, fired effects, and engine diagnostics. Operators use it
// to review a session after the fact; the engine never reads it back.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      TEXT NOT NULL,
	room_id TEXT NOT NULL,
	kind    TEXT NOT NULL,
	detail  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_room ON events(room_id, id);
`

// Entry is one logged occurrence.
type Entry struct {
	ID     int64           `json:"id"`
	At     time.Time       `json:"at"`
	RoomID string          `json:"roomId"`
	Kind   string          `json:"kind"`
	Detail json.RawMessage `json:"detail"`
}

// History manages the SQLite connection for the activity log.
type History struct {
	db *sql.DB
}

// Open opens a SQLite database, sets WAL mode and busy timeout, and creates
// the schema.
func Open(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the SQLite connection.
func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Record appends one entry. detail must be JSON-encodable.
func (h *History) Record(ctx context.Context, roomID, kind string, detail any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("history: encode detail: %w", err)
	}
	_, err = h.db.ExecContext(ctx,
		"INSERT INTO events (at, room_id, kind, detail) VALUES (?, ?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339Nano), roomID, kind, string(data))
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns the newest entries for a room, most recent first.
func (h *History) Recent(ctx context.Context, roomID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := h.db.QueryContext(ctx,
		"SELECT id, at, room_id, kind, detail FROM events WHERE room_id = ? ORDER BY id DESC LIMIT ?",
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at, detail string
		if err := rows.Scan(&e.ID, &at, &e.RoomID, &e.Kind, &detail); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Detail = json.RawMessage(detail)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many went.
func (h *History) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx,
		"DELETE FROM events WHERE at < ?", olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}
