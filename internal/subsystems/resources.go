package subsystems

import "github.com/MRamiBalles/GalacticCiv/internal/world"

// ResourceManagement answers questions about an entity's treasury.
type ResourceManagement struct {
	view world.View
}

func NewResourceManagement(view world.View) *ResourceManagement {
	return &ResourceManagement{view: view}
}

func (rm *ResourceManagement) Name() string { return ResourceManagementName }

// Available returns the resources an entity can spend. Unknown entities have none.
func (rm *ResourceManagement) Available(subjectID string) float64 {
	e, ok := rm.view.Entity(subjectID)
	if !ok {
		return 0
	}
	return max(0, e.Resources)
}

// CanAfford reports whether cost fits in available.
func (rm *ResourceManagement) CanAfford(available, cost float64) bool {
	return cost <= available
}
