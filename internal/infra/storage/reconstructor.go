package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MRamiBalles/GalacticCiv/internal/events"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// Recap impact classes.
const (
	ImpactPositive = "POSITIVE"
	ImpactNegative = "NEGATIVE"
	ImpactNeutral  = "NEUTRAL"
)

// Reconstructor rebuilds engine state from storage.
// It is used on boot, to resume the galaxy where it stopped, and by the
// recap endpoint, to tell a player what happened to an entity.
type Reconstructor struct {
	events    EventRepository
	snapshots SnapshotRepository
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(er EventRepository, sr SnapshotRepository) *Reconstructor {
	return &Reconstructor{events: er, snapshots: sr}
}

// RecapEntry is a simplified event for the recap screen.
type RecapEntry struct {
	Tick    uint64 `json:"tick"`
	Type    string `json:"type"`
	Summary string `json:"summary"` // Human-readable description
	Impact  string `json:"impact"`
}

// Restore returns the last journaled tick and every entity snapshot,
// ready for engine.Restore.
func (r *Reconstructor) Restore(ctx context.Context) (uint64, []world.Entity, error) {
	tick, err := r.events.LastTick(ctx)
	if err != nil {
		return 0, nil, err
	}
	entities, err := r.snapshots.All(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	return tick, entities, nil
}

// Recap lists what happened to actorID from sinceTick onwards.
func (r *Reconstructor) Recap(ctx context.Context, actorID string, sinceTick uint64) ([]RecapEntry, error) {
	recs, err := r.events.ByActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var recap []RecapEntry
	for _, rec := range recs {
		if rec.Tick < sinceTick {
			continue
		}
		summary, impact := summarize(rec)
		recap = append(recap, RecapEntry{Tick: rec.Tick, Type: rec.Type, Summary: summary, Impact: impact})
	}
	return recap, nil
}

// summarize creates a human-readable line and classifies its impact.
func summarize(rec EventRecord) (string, string) {
	switch events.Type(rec.Type) {
	case events.TypeStateChanged:
		var p events.StateChangedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return "State changed.", ImpactNeutral
		}
		d := p.Decision
		var b strings.Builder
		fmt.Fprintf(&b, "Chose to %s", d.ChosenAction)
		if d.IsFallback {
			b.WriteString(" (no counsel arrived in time)")
		}
		if cost := d.Cost(); cost > 0 {
			fmt.Fprintf(&b, ", spending %.0f", cost)
		}
		impact := ImpactNeutral
		if si := d.SocialImpact; si != nil && si.Magnitude != 0 {
			fmt.Fprintf(&b, ", standing with %s %+.0f", si.TargetID, si.Magnitude)
			if si.Magnitude > 0 {
				impact = ImpactPositive
			} else {
				impact = ImpactNegative
			}
		}
		b.WriteString(".")
		return b.String(), impact
	case events.TypeActionFailed:
		var p events.ActionFailedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil || p.Reason == "" {
			return "An order could not be carried out.", ImpactNegative
		}
		return "An order could not be carried out: " + p.Reason + ".", ImpactNegative
	default:
		return "Something happened in the galaxy.", ImpactNeutral
	}
}
