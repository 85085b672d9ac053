package subsystems

import (
	"slices"
	"strings"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// CharacterManagement describes individual entities.
type CharacterManagement struct {
	view world.View
}

func NewCharacterManagement(view world.View) *CharacterManagement {
	return &CharacterManagement{view: view}
}

func (cm *CharacterManagement) Name() string { return CharacterManagementName }

func (cm *CharacterManagement) Location(id string) string {
	e, _ := cm.view.Entity(id)
	return e.Location
}

// Relationships returns the entity's standings sorted by target, so contexts serialize deterministically.
func (cm *CharacterManagement) Relationships(id string) []simulation.Relationship {
	e, ok := cm.view.Entity(id)
	if !ok || len(e.Relationships) == 0 {
		return nil
	}
	out := make([]simulation.Relationship, 0, len(e.Relationships))
	for target, standing := range e.Relationships {
		out = append(out, simulation.Relationship{TargetID: target, Standing: standing})
	}
	slices.SortFunc(out, func(a, b simulation.Relationship) int {
		return strings.Compare(a.TargetID, b.TargetID)
	})
	return out
}

func (cm *CharacterManagement) RecentActions(id string) []string {
	e, _ := cm.view.Entity(id)
	return e.RecentActions
}
