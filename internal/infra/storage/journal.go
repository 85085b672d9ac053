package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/events"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

const writeTimeout = 5 * time.Second

// Journal persists engine events. It satisfies events.EventPersister, so it
// plugs into an EventLog attached to the engine.
//
// Every event is appended to the journal. stateChanged also refreshes the
// snapshots of the entities it touched, and stopped snapshots the whole world.
type Journal struct {
	events    EventRepository
	snapshots SnapshotRepository
	view      world.View
}

// NewJournal wires the repositories. view is read after each applied decision.
func NewJournal(er EventRepository, sr SnapshotRepository, view world.View) *Journal {
	return &Journal{events: er, snapshots: sr, view: view}
}

// Append writes e and the snapshots it implies.
func (j *Journal) Append(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	rec, err := RecordFromEvent(e)
	if err != nil {
		return err
	}
	if err := j.events.Append(ctx, rec); err != nil {
		return err
	}

	switch e.Type {
	case events.TypeStateChanged:
		ids := []string{e.ActorID}
		if p, ok := e.Payload.(events.StateChangedPayload); ok && p.Decision.SocialImpact != nil {
			ids = append(ids, p.Decision.SocialImpact.TargetID)
		}
		return j.snapshot(ctx, e.Tick, ids...)
	case events.TypeStopped:
		var errs []error
		for _, ent := range j.view.Entities() {
			if err := j.snapshots.Upsert(ctx, e.Tick, ent); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return nil
}

func (j *Journal) snapshot(ctx context.Context, tick uint64, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		ent, ok := j.view.Entity(id)
		if !ok {
			continue
		}
		if err := j.snapshots.Upsert(ctx, tick, ent); err != nil {
			return fmt.Errorf("snapshot %s: %w", id, err)
		}
	}
	return nil
}

var _ events.EventPersister = (*Journal)(nil)
