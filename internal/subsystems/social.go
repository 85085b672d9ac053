package subsystems

import (
	"fmt"
	"math"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

const (
	// MaxMagnitude bounds how far one decision can move a relationship.
	MaxMagnitude = 25.0
	// betrayalConfidenceFactor scales confidence when acting against an ally.
	betrayalConfidenceFactor = 0.5
)

// SocialRules validates relationship effects between entities.
type SocialRules struct {
	view world.View
}

func NewSocialRules(view world.View) *SocialRules {
	return &SocialRules{view: view}
}

func (sr *SocialRules) Name() string { return SocialRulesName }

// ValidateSocialAction checks impact for subjectID. Adjustments use the keys
// understood by simulation.Decision.ApplyAdjustments.
func (sr *SocialRules) ValidateSocialAction(subjectID string, impact simulation.SocialImpact) simulation.Validation {
	v := simulation.Validation{Valid: true}
	adjust := func(k string, val any) {
		if v.Adjustments == nil {
			v.Adjustments = make(map[string]any)
		}
		v.Adjustments[k] = val
	}

	if impact.TargetID == "" {
		return v
	}
	if impact.TargetID == subjectID {
		v.Valid = false
		v.Issues = append(v.Issues, "Social action cannot target its own subject")
		adjust(simulation.AdjustMagnitude, 0.0)
		return v
	}
	if _, ok := sr.view.Entity(impact.TargetID); !ok {
		v.Valid = false
		v.Issues = append(v.Issues, fmt.Sprintf("Unknown social target %s", impact.TargetID))
		adjust(simulation.AdjustMagnitude, 0.0)
		return v
	}

	if math.Abs(impact.Magnitude) > MaxMagnitude {
		adjust(simulation.AdjustMagnitude, math.Copysign(MaxMagnitude, impact.Magnitude))
	}

	// Hostility towards an ally is allowed, but the module should not be sure of it
	if impact.Magnitude < 0 {
		if subject, ok := sr.view.Entity(subjectID); ok && subject.Relationships[impact.TargetID] >= simulation.AllyThreshold {
			v.Issues = append(v.Issues, fmt.Sprintf("Hostile action against ally %s", impact.TargetID))
			adjust(simulation.AdjustConfidenceFactor, betrayalConfidenceFactor)
		}
	}
	return v
}
