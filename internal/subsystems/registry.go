// Package subsystems holds the deterministic rule sets consulted while deciding.
//
// ARCHITECTURAL RULE: subsystems answer queries against world.View and never mutate state.
package subsystems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// Well-known subsystem names.
const (
	ResourceManagementName  = "resource-management"
	SocialRulesName         = "social-rules"
	CharacterManagementName = "character-management"
	PopulationDynamicsName  = "population-dynamics"
)

// ErrDuplicateSubsystem is returned when a name is registered twice.
var ErrDuplicateSubsystem = errors.New("subsystem already registered")

// Subsystem is a named deterministic query/validation object.
type Subsystem interface {
	Name() string
}

// ResourceQuerier answers affordability questions.
type ResourceQuerier interface {
	Available(subjectID string) float64
	CanAfford(available, cost float64) bool
}

// SocialValidator checks the social effect of a decision.
type SocialValidator interface {
	ValidateSocialAction(subjectID string, impact simulation.SocialImpact) simulation.Validation
}

// CharacterQuerier describes a single entity for context assembly.
type CharacterQuerier interface {
	Location(id string) string
	Relationships(id string) []simulation.Relationship
	RecentActions(id string) []string
}

// EnvironmentQuerier describes the galaxy as a whole.
type EnvironmentQuerier interface {
	Environment() map[string]float64
}

// Registry maps subsystem names to implementations.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Subsystem
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Subsystem)}
}

// NewDefaultRegistry registers the four built-in subsystems over view.
func NewDefaultRegistry(view world.View) *Registry {
	r := NewRegistry()
	for _, s := range []Subsystem{
		NewResourceManagement(view),
		NewSocialRules(view),
		NewCharacterManagement(view),
		NewPopulationDynamics(view),
	} {
		// Names are distinct constants
		_ = r.Register(s)
	}
	return r
}

// Register adds a subsystem under its name.
func (r *Registry) Register(s Subsystem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[s.Name()]; ok {
		return fmt.Errorf("%s: %w", s.Name(), ErrDuplicateSubsystem)
	}
	r.byName[s.Name()] = s
	r.order = append(r.order, s.Name())
	return nil
}

// Get returns the subsystem registered under name.
func (r *Registry) Get(name string) (Subsystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Names lists registered subsystems in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Resources returns the resource-management subsystem, if registered.
func (r *Registry) Resources() (ResourceQuerier, bool) {
	return lookup[ResourceQuerier](r, ResourceManagementName)
}

// Social returns the social-rules subsystem, if registered.
func (r *Registry) Social() (SocialValidator, bool) {
	return lookup[SocialValidator](r, SocialRulesName)
}

// Characters returns the character-management subsystem, if registered.
func (r *Registry) Characters() (CharacterQuerier, bool) {
	return lookup[CharacterQuerier](r, CharacterManagementName)
}

// Population returns the population-dynamics subsystem, if registered.
func (r *Registry) Population() (EnvironmentQuerier, bool) {
	return lookup[EnvironmentQuerier](r, PopulationDynamicsName)
}

func lookup[T any](r *Registry, name string) (T, bool) {
	var zero T
	s, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	t, ok := s.(T)
	return t, ok
}
