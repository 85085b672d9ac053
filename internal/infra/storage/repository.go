// Package storage persists the engine's event journal and entity snapshots.
// The engine never imports this package: storage subscribes to engine events
// and feeds Restore on boot.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/events"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// EventRecord is an engine event as stored. Payload stays raw JSON.
type EventRecord struct {
	ID        string          `json:"id"`
	Tick      uint64          `json:"tick"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	ActorID   string          `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
}

// RecordFromEvent flattens an engine event for storage.
func RecordFromEvent(e events.Event) (EventRecord, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	return EventRecord{
		ID:        e.ID,
		Tick:      e.Tick,
		Timestamp: e.Timestamp,
		Type:      string(e.Type),
		ActorID:   e.ActorID,
		Payload:   payload,
	}, nil
}

// EventRepository is the append-only engine journal.
type EventRepository interface {
	// Append adds a new event to the journal.
	Append(ctx context.Context, rec EventRecord) error

	// Since returns events from tick onwards, oldest first.
	Since(ctx context.Context, tick uint64) ([]EventRecord, error)

	// ByActor returns every event about an entity, oldest first.
	ByActor(ctx context.Context, actorID string) ([]EventRecord, error)

	// ByType returns every event of one type, oldest first.
	ByType(ctx context.Context, eventType string) ([]EventRecord, error)

	// LastTick returns the highest tick journaled, 0 for an empty journal.
	LastTick(ctx context.Context) (uint64, error)
}

// SnapshotRepository keeps the latest known state of each entity.
type SnapshotRepository interface {
	// Upsert stores e as of tick, replacing any older snapshot.
	Upsert(ctx context.Context, tick uint64, e world.Entity) error

	// Get returns the snapshot of one entity or ErrNotFound.
	Get(ctx context.Context, id string) (world.Entity, error)

	// All returns every snapshot sorted by ID.
	All(ctx context.Context) ([]world.Entity, error)
}
