package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

const selectEvents = `SELECT id, tick, timestamp, event_type, actor_id, payload FROM engine_events`

func (r *SQLiteEventRepository) Append(ctx context.Context, rec EventRecord) error {
	// seq keeps insertion order for events sharing a timestamp
	query := `
		INSERT INTO engine_events (id, seq, tick, timestamp, event_type, actor_id, payload)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM engine_events), ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Tick, rec.Timestamp.UTC(), rec.Type, rec.ActorID, string(rec.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...any) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		var payload string
		if err := rows.Scan(&e.ID, &e.Tick, &e.Timestamp, &e.Type, &e.ActorID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteEventRepository) Since(ctx context.Context, tick uint64) ([]EventRecord, error) {
	return r.getMany(ctx, selectEvents+` WHERE tick >= ? ORDER BY seq ASC`, tick)
}

func (r *SQLiteEventRepository) ByActor(ctx context.Context, actorID string) ([]EventRecord, error) {
	return r.getMany(ctx, selectEvents+` WHERE actor_id = ? ORDER BY seq ASC`, actorID)
}

func (r *SQLiteEventRepository) ByType(ctx context.Context, eventType string) ([]EventRecord, error) {
	return r.getMany(ctx, selectEvents+` WHERE event_type = ? ORDER BY seq ASC`, eventType)
}

func (r *SQLiteEventRepository) LastTick(ctx context.Context) (uint64, error) {
	var tick sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(tick) FROM engine_events`).Scan(&tick); err != nil {
		return 0, fmt.Errorf("failed to read last tick: %w", err)
	}
	return uint64(tick.Int64), nil
}

// ---------------------------------------------------------
// SQLiteSnapshotRepository
// ---------------------------------------------------------

type SQLiteSnapshotRepository struct {
	db *sql.DB
}

func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

func (r *SQLiteSnapshotRepository) Upsert(ctx context.Context, tick uint64, e world.Entity) error {
	state, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", e.ID, err)
	}
	query := `
		INSERT INTO entities (entity_id, kind, tick, state_json, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			kind=excluded.kind,
			tick=excluded.tick,
			state_json=excluded.state_json,
			last_updated=excluded.last_updated
		WHERE excluded.tick >= entities.tick
	`
	_, err = r.db.ExecContext(ctx, query, e.ID, e.Kind, tick, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
	}
	return nil
}

func (r *SQLiteSnapshotRepository) Get(ctx context.Context, id string) (world.Entity, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `SELECT state_json FROM entities WHERE entity_id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return world.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return world.Entity{}, err
	}
	var e world.Entity
	if err := json.Unmarshal([]byte(state), &e); err != nil {
		return world.Entity{}, fmt.Errorf("failed to decode entity %s: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteSnapshotRepository) All(ctx context.Context) ([]world.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state_json FROM entities ORDER BY entity_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.Entity
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		var e world.Entity
		if err := json.Unmarshal([]byte(state), &e); err != nil {
			return nil, fmt.Errorf("failed to decode entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var (
	_ EventRepository    = (*SQLiteEventRepository)(nil)
	_ SnapshotRepository = (*SQLiteSnapshotRepository)(nil)
)
