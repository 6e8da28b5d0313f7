// Package store persists game snapshots and event logs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"settlers/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	snapshot   BLOB NOT NULL,
	finished   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	game_id    TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	type       TEXT NOT NULL,
	player     INTEGER NOT NULL,
	data       TEXT,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (game_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_games_updated ON games(updated_at);
`

// Record is one stored game.
type Record struct {
	ID        string
	Snapshot  []byte
	Finished  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredEvent is one row of a game's event log.
type StoredEvent struct {
	Seq       int              `json:"seq"`
	Type      engine.EventType `json:"type"`
	Player    int              `json:"player"`
	Data      json.RawMessage  `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store is a SQLite-backed game archive.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	// One connection: in-memory databases are per connection, and SQLite
	// serialises writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveGame upserts the latest snapshot for id.
func (s *Store) SaveGame(ctx context.Context, id string, snapshot []byte, finished bool) error {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO games (id, snapshot, finished, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot = excluded.snapshot,
			finished = excluded.finished,
			updated_at = excluded.updated_at`,
		id, snapshot, boolToInt(finished), now, now)
	if err != nil {
		return fmt.Errorf("save game %s: %w", id, err)
	}
	return nil
}

// AppendEvents adds events to the end of id's log.
func (s *Store) AppendEvents(ctx context.Context, id string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append events %s: %w", id, err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE game_id = ?`, id).Scan(&seq); err != nil {
		return fmt.Errorf("append events %s: %w", id, err)
	}

	now := s.now().UnixMilli()
	for _, ev := range events {
		seq++
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("append events %s: encode %s: %w", id, ev.Type, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (game_id, seq, type, player, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, seq, string(ev.Type), ev.Player, string(data), now); err != nil {
			return fmt.Errorf("append events %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// LoadGame returns the stored snapshot for id, or sql.ErrNoRows.
func (s *Store) LoadGame(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, snapshot, finished, created_at, updated_at FROM games WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("load game %s: %w", id, err)
	}
	return rec, nil
}

// LoadGames returns stored games, least recently updated first. With
// unfinishedOnly, games that reached game over are skipped.
func (s *Store) LoadGames(ctx context.Context, unfinishedOnly bool) ([]Record, error) {
	q := `SELECT id, snapshot, finished, created_at, updated_at FROM games`
	if unfinishedOnly {
		q += ` WHERE finished = 0`
	}
	q += ` ORDER BY updated_at, id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("load games: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Events returns id's event log in order.
func (s *Store) Events(ctx context.Context, id string) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, type, player, data, created_at FROM events WHERE game_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("events %s: %w", id, err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev      StoredEvent
			typ     string
			data    sql.NullString
			created int64
		)
		if err := rows.Scan(&ev.Seq, &typ, &ev.Player, &data, &created); err != nil {
			return nil, fmt.Errorf("events %s: %w", id, err)
		}
		ev.Type = engine.EventType(typ)
		if data.Valid {
			ev.Data = json.RawMessage(data.String)
		}
		ev.CreatedAt = time.UnixMilli(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteGame removes a game and its log.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE game_id = ?`, id); err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec              Record
		finished         int
		created, updated int64
	)
	if err := sc.Scan(&rec.ID, &rec.Snapshot, &finished, &created, &updated); err != nil {
		return Record{}, err
	}
	rec.Finished = finished != 0
	rec.CreatedAt = time.UnixMilli(created)
	rec.UpdatedAt = time.UnixMilli(updated)
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
