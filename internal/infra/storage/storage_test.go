package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/events"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

func openTestDB(t *testing.T) (*SQLiteEventRepository, *SQLiteSnapshotRepository) {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "data", "galaxy.db"))
	if err != nil {
		t.Fatalf("InitSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEventRepository(db), NewSQLiteSnapshotRepository(db)
}

func TestJournalRoundTrip(t *testing.T) {
	er, sr := openTestDB(t)
	state := world.NewState()
	state.Upsert(world.Entity{ID: "E1", Kind: "empire", Resources: 100})
	state.Upsert(world.Entity{ID: "E2", Kind: "empire", Resources: 50})
	j := NewJournal(er, sr, state)

	decision := simulation.Decision{
		ChosenAction: "alliance",
		ResourceCost: simulation.Float(10),
		SocialImpact: &simulation.SocialImpact{TargetID: "E2", Magnitude: 5},
		Validation:   simulation.Validation{Valid: true},
	}
	if err := state.Apply(simulation.Action{ID: "A1", Domain: simulation.DomainSocialPolitical, SubjectID: "E1"}, &decision); err != nil {
		t.Fatal(err)
	}

	evs := []events.Event{
		events.New(events.TypeTick, 1, "", events.TickPayload{Tick: 1}),
		events.New(events.TypeStateChanged, 2, "E1", events.StateChangedPayload{ActionID: "A1", Decision: decision}),
		events.New(events.TypeActionFailed, 3, "E1", events.ActionFailedPayload{ActionID: "A2", Reason: "unknown entity"}),
	}
	for _, e := range evs {
		if err := j.Append(e); err != nil {
			t.Fatalf("Append %s failed: %v", e.Type, err)
		}
	}

	ctx := context.Background()
	last, err := er.LastTick(ctx)
	if err != nil || last != 3 {
		t.Errorf("Expected last tick 3, got %d (%v)", last, err)
	}
	since, _ := er.Since(ctx, 2)
	if len(since) != 2 || since[0].Type != string(events.TypeStateChanged) {
		t.Errorf("Unexpected events since tick 2: %+v", since)
	}
	ticks, _ := er.ByType(ctx, string(events.TypeTick))
	if len(ticks) != 1 {
		t.Errorf("Expected 1 tick event, got %d", len(ticks))
	}

	// Both sides of the social impact were snapshotted
	e1, err := sr.Get(ctx, "E1")
	if err != nil || e1.Resources != 90 || e1.Relationships["E2"] != 5 {
		t.Errorf("Unexpected E1 snapshot: %+v (%v)", e1, err)
	}
	e2, err := sr.Get(ctx, "E2")
	if err != nil || e2.Relationships["E1"] != 5 {
		t.Errorf("Unexpected E2 snapshot: %+v (%v)", e2, err)
	}
	if _, err := sr.Get(ctx, "E9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	tick, entities, err := NewReconstructor(er, sr).Restore(ctx)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if tick != 3 || len(entities) != 2 || entities[0].ID != "E1" {
		t.Errorf("Unexpected restore: tick %d, entities %+v", tick, entities)
	}
}

func TestSnapshotIgnoresOlderTicks(t *testing.T) {
	_, sr := openTestDB(t)
	ctx := context.Background()

	if err := sr.Upsert(ctx, 5, world.Entity{ID: "E1", Resources: 10}); err != nil {
		t.Fatal(err)
	}
	if err := sr.Upsert(ctx, 3, world.Entity{ID: "E1", Resources: 99}); err != nil {
		t.Fatal(err)
	}
	got, _ := sr.Get(ctx, "E1")
	if got.Resources != 10 {
		t.Errorf("Older snapshot overwrote a newer one: %+v", got)
	}
}

func TestStoppedSnapshotsWholeWorld(t *testing.T) {
	er, sr := openTestDB(t)
	state := world.NewState()
	for _, id := range []string{"E1", "E2", "E3"} {
		state.Upsert(world.Entity{ID: id})
	}
	j := NewJournal(er, sr, state)
	if err := j.Append(events.New(events.TypeStopped, 7, "", events.LifecyclePayload{Reason: "requested"})); err != nil {
		t.Fatal(err)
	}
	all, _ := sr.All(context.Background())
	if len(all) != 3 {
		t.Errorf("Expected 3 snapshots, got %d", len(all))
	}
}

func TestRecap(t *testing.T) {
	er, sr := openTestDB(t)
	j := NewJournal(er, sr, world.NewState())

	hostile := simulation.Decision{
		ChosenAction: "raid",
		SocialImpact: &simulation.SocialImpact{TargetID: "E2", Magnitude: -12},
	}
	fallback := *simulation.NewFallbackDecision()
	for _, e := range []events.Event{
		events.New(events.TypeStateChanged, 1, "E1", events.StateChangedPayload{Decision: fallback}),
		events.New(events.TypeStateChanged, 2, "E1", events.StateChangedPayload{Decision: hostile}),
		events.New(events.TypeActionFailed, 3, "E1", events.ActionFailedPayload{Reason: "out of fuel"}),
		events.New(events.TypeStateChanged, 3, "E2", events.StateChangedPayload{Decision: hostile}),
	} {
		if err := j.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	recap, err := NewReconstructor(er, sr).Recap(context.Background(), "E1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recap) != 2 {
		t.Fatalf("Expected 2 recap entries, got %+v", recap)
	}
	if recap[0].Impact != ImpactNegative || recap[0].Summary != "Chose to raid, standing with E2 -12." {
		t.Errorf("Unexpected hostile entry: %+v", recap[0])
	}
	if recap[1].Impact != ImpactNegative || recap[1].Summary != "An order could not be carried out: out of fuel." {
		t.Errorf("Unexpected failure entry: %+v", recap[1])
	}
}
