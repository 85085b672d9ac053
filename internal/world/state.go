// Package world holds the single shared simulation state.
//
// ARCHITECTURAL RULE: only the engine's update phase writes through Apply.
// Everything else reads through View.
package world

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
)

// ErrUnknownEntity is returned when a decision targets an entity that does not exist.
var ErrUnknownEntity = errors.New("unknown entity")

const (
	maxRecentActions = 10
	minStanding      = -100.0
	maxStanding      = 100.0
)

// Entity is anything that acts in the galaxy: an empire, a character, a company.
type Entity struct {
	ID            string             `json:"id"`
	Kind          string             `json:"kind"` // "empire", "character", "business"...
	Location      string             `json:"location,omitempty"`
	Resources     float64            `json:"resources"`
	Population    float64            `json:"population"`
	Attributes    map[string]float64 `json:"attributes,omitempty"`
	Relationships map[string]float64 `json:"relationships,omitempty"` // target -> standing
	RecentActions []string           `json:"recent_actions,omitempty"`
}

func (e Entity) clone() Entity {
	e.Attributes = maps.Clone(e.Attributes)
	e.Relationships = maps.Clone(e.Relationships)
	e.RecentActions = slices.Clone(e.RecentActions)
	return e
}

// Statistics aggregates what the update phase has applied so far.
type Statistics struct {
	Entities          int                          `json:"entities"`
	Population        float64                      `json:"population"`
	ActionsApplied    uint64                       `json:"actions_applied"`
	FallbackDecisions uint64                       `json:"fallback_decisions"`
	InvalidDecisions  uint64                       `json:"invalid_decisions"`
	ResourcesSpent    float64                      `json:"resources_spent"`
	ByDomain          map[simulation.Domain]uint64 `json:"by_domain"`
}

// Summary is the read-only view returned to API callers.
type Summary struct {
	Time       uint64     `json:"time"`
	Statistics Statistics `json:"statistics"`
}

// View is the read-only surface subsystems query.
type View interface {
	Entity(id string) (Entity, bool)
	Entities() []Entity
	Time() uint64
}

// Applier applies one validated decision. Implementations are called from a single goroutine.
type Applier interface {
	Apply(action simulation.Action, decision *simulation.Decision) error
}

// State is the in-memory world store.
type State struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	time     uint64
	stats    Statistics
}

// NewState creates an empty world.
func NewState() *State {
	return &State{
		entities: make(map[string]*Entity),
		stats:    Statistics{ByDomain: make(map[simulation.Domain]uint64)},
	}
}

// Upsert inserts or replaces an entity. Used for seeding and restore, never during a tick.
func (s *State) Upsert(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := e.clone()
	s.entities[e.ID] = &c
}

// Entity returns a copy of one entity.
func (s *State) Entity(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// Entities returns copies of every entity, sorted by ID.
func (s *State) Entities() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.clone())
	}
	slices.SortFunc(out, func(a, b Entity) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Time returns the last completed tick.
func (s *State) Time() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// SetTime moves the clock, called by the engine once per tick.
func (s *State) SetTime(t uint64) {
	s.mu.Lock()
	s.time = t
	s.mu.Unlock()
}

// Summary returns the time and statistics.
func (s *State) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.ByDomain = maps.Clone(s.stats.ByDomain)
	stats.Entities = len(s.entities)
	for _, e := range s.entities {
		stats.Population += e.Population
	}
	return Summary{Time: s.time, Statistics: stats}
}

// Apply writes one validated decision into the world.
func (s *State) Apply(action simulation.Action, d *simulation.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, ok := s.entities[action.SubjectID]
	if !ok {
		return fmt.Errorf("apply %s: subject %q: %w", action.ID, action.SubjectID, ErrUnknownEntity)
	}

	s.stats.ActionsApplied++
	s.stats.ByDomain[action.Domain]++
	if d.IsFallback {
		s.stats.FallbackDecisions++
	}
	if !d.Validation.Valid {
		s.stats.InvalidDecisions++
	}

	// Resources: the dispatcher already clamped the cost to what is available
	if cost := d.Cost(); cost > 0 {
		spent := min(cost, subject.Resources)
		subject.Resources -= spent
		s.stats.ResourcesSpent += spent
	}

	// Standings only exist between two distinct, known entities
	if impact := d.SocialImpact; impact != nil && impact.TargetID != "" && impact.TargetID != subject.ID {
		target, known := s.entities[impact.TargetID]
		rejected := !d.Validation.Valid && impact.Magnitude == 0
		if known && !rejected {
			if subject.Relationships == nil {
				subject.Relationships = make(map[string]float64)
			}
			subject.Relationships[target.ID] = clampStanding(subject.Relationships[target.ID] + impact.Magnitude)
			if target.Relationships == nil {
				target.Relationships = make(map[string]float64)
			}
			target.Relationships[subject.ID] = clampStanding(target.Relationships[subject.ID] + impact.Magnitude)
		}
	}

	subject.RecentActions = append(subject.RecentActions, d.ChosenAction)
	if over := len(subject.RecentActions) - maxRecentActions; over > 0 {
		subject.RecentActions = slices.Clone(subject.RecentActions[over:])
	}
	return nil
}

func clampStanding(v float64) float64 {
	return max(minStanding, min(maxStanding, v))
}
