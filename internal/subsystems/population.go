package subsystems

import (
	"math"

	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// eraLength is how many ticks make one era in the environment summary.
const eraLength = 100

// PopulationDynamics summarizes the galaxy for context assembly.
type PopulationDynamics struct {
	view world.View
}

func NewPopulationDynamics(view world.View) *PopulationDynamics {
	return &PopulationDynamics{view: view}
}

func (pd *PopulationDynamics) Name() string { return PopulationDynamicsName }

// Environment returns coarse galaxy-wide figures. The raw tick is not included:
// contexts from consecutive ticks must be able to share a cache entry.
func (pd *PopulationDynamics) Environment() map[string]float64 {
	entities := pd.view.Entities()

	var population, resources float64
	kinds := make(map[string]float64)
	for _, e := range entities {
		population += e.Population
		resources += e.Resources
		kinds["kind:"+e.Kind]++
	}

	env := map[string]float64{
		"era":        float64(pd.view.Time() / eraLength),
		"entities":   float64(len(entities)),
		"population": math.Round(population),
	}
	if len(entities) > 0 {
		env["avg_resources"] = math.Round(resources / float64(len(entities)))
	}
	for k, v := range kinds {
		env[k] = v
	}
	return env
}
