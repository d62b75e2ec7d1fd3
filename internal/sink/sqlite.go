package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// StoredEvent is one archived row.
type StoredEvent struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	WorldID     sql.NullInt64 `db:"world_id"`
	CharacterID sql.NullInt64 `db:"character_id"` // uint64 id stored by bit pattern, see Character
	Timestamp   int64         `db:"ts"` // unix millis, as the event reported it
	ReceivedAt  int64         `db:"received_at"`
	Payload     string        `db:"payload"`
}

// SQLiteArchive appends every event to a local SQLite database.
type SQLiteArchive struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the archive at path.
func OpenSQLite(path string) (*SQLiteArchive, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	a := &SQLiteArchive{db: db, now: time.Now}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("event archive opened", "path", path)
	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			world_id INTEGER,
			character_id INTEGER,
			ts INTEGER NOT NULL DEFAULT 0,
			received_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_name ON events(name)`,
		`CREATE INDEX IF NOT EXISTS idx_events_character ON events(character_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_world_ts ON events(world_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (a *SQLiteArchive) Name() string { return "sqlite" }

// indexFields pulls the indexed columns out of an event's JSON form. Not
// every event has a character or a world.
type indexFields struct {
	WorldID     *int64  `json:"world_id"`
	CharacterID *uint64 `json:"character_id"`
	Timestamp   int64   `json:"timestamp"`
}

func (a *SQLiteArchive) Write(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	var idx indexFields
	if err := json.Unmarshal(payload, &idx); err != nil {
		return fmt.Errorf("index %s: %w", ev.EventName(), err)
	}

	row := StoredEvent{
		Name:        string(ev.EventName()),
		WorldID:     nullInt(idx.WorldID),
		CharacterID: nullCharacter(idx.CharacterID),
		Timestamp:   idx.Timestamp,
		ReceivedAt:  a.now().UnixMilli(),
		Payload:     string(payload),
	}
	_, err = a.db.NamedExecContext(ctx, `INSERT INTO events (name, world_id, character_id, ts, received_at, payload)
		VALUES (:name, :world_id, :character_id, :ts, :received_at, :payload)`, row)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// nullCharacter stores a character id in an INTEGER column. Ids above
// MaxInt64 wrap to negative values; Recent applies the same conversion.
func nullCharacter(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// Character returns the archived character id, if the event had one.
func (e StoredEvent) Character() (events.CharacterID, bool) {
	return events.CharacterID(uint64(e.CharacterID.Int64)), e.CharacterID.Valid
}

// Count returns the number of archived events with the given name, or of
// all events when name is empty.
func (a *SQLiteArchive) Count(ctx context.Context, name events.Name) (int, error) {
	var n int
	var err error
	if name == "" {
		err = a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM events`)
	} else {
		err = a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM events WHERE name = ?`, string(name))
	}
	return n, err
}

// Recent returns up to limit events for a character, newest first.
func (a *SQLiteArchive) Recent(ctx context.Context, character events.CharacterID, limit int) ([]StoredEvent, error) {
	var rows []StoredEvent
	err := a.db.SelectContext(ctx, &rows, `SELECT id, name, world_id, character_id, ts, received_at, payload
		FROM events WHERE character_id = ? ORDER BY id DESC LIMIT ?`, int64(uint64(character)), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return rows, nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
