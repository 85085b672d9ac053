// Package perception assembles the DecisionContext a module decides on.
//
// It only reads, through the deterministic subsystems, and builds a fresh
// context for every decision request.
package perception

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/subsystems"
)

// Tension levels derived from a subject's relationships.
const (
	TensionLow      = "LOW"
	TensionMedium   = "MEDIUM"
	TensionHigh     = "HIGH"
	TensionCritical = "CRITICAL"
)

// Perceiver builds decision contexts from the subsystem registry.
type Perceiver struct {
	registry *subsystems.Registry
}

// NewPerceiver creates a new perception module.
func NewPerceiver(registry *subsystems.Registry) *Perceiver {
	return &Perceiver{registry: registry}
}

// BuildContext assembles the context for action. Missing subsystems leave their fields empty.
func (p *Perceiver) BuildContext(action simulation.Action) simulation.DecisionContext {
	dc := simulation.DecisionContext{
		Kind:    string(action.Domain),
		Subject: action.SubjectID,
		Action:  simulation.Summarize(action),
	}

	if chars, ok := p.registry.Characters(); ok {
		dc.Location = chars.Location(action.SubjectID)
		dc.Relationships = chars.Relationships(action.SubjectID)
		dc.RecentActions = slices.Clone(chars.RecentActions(action.SubjectID))
	}
	if res, ok := p.registry.Resources(); ok {
		dc.AvailableResources = res.Available(action.SubjectID)
	}
	if pop, ok := p.registry.Population(); ok {
		dc.Environment = pop.Environment()
	}
	return dc
}

// TensionLevel scores how hostile the subject's neighbourhood is.
func TensionLevel(dc simulation.DecisionContext) string {
	score := 0

	for _, r := range dc.Relationships {
		switch {
		case r.Standing <= -75:
			score += 3
		case r.Standing <= -40:
			score += 2
		case r.Standing < 0:
			score++
		}
	}

	// Broke subjects are more desperate
	if dc.AvailableResources < 10 {
		score += 2
	} else if dc.AvailableResources < 50 {
		score++
	}

	switch {
	case score >= 8:
		return TensionCritical
	case score >= 5:
		return TensionHigh
	case score >= 2:
		return TensionMedium
	default:
		return TensionLow
	}
}

// Narrative renders the context as an LLM-ready briefing.
func Narrative(dc simulation.DecisionContext) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("=== SITUATION REPORT: %s ===\n", dc.Subject))
	sb.WriteString(fmt.Sprintf("Domain: %s\n", dc.Kind))
	if dc.Location != "" {
		sb.WriteString(fmt.Sprintf("Location: %s\n", dc.Location))
	}
	sb.WriteString(fmt.Sprintf("Available resources: %.1f\n", dc.AvailableResources))
	sb.WriteString(fmt.Sprintf("Tension: %s\n\n", TensionLevel(dc)))

	sb.WriteString("=== RELATIONSHIPS ===\n")
	if len(dc.Relationships) == 0 {
		sb.WriteString("- No known contacts.\n")
	}
	for i, r := range dc.Relationships {
		if i >= 5 {
			break // Limit to 5 relationships to control token usage
		}
		sb.WriteString(fmt.Sprintf("- %s: %+.0f\n", r.TargetID, r.Standing))
	}

	if len(dc.RecentActions) > 0 {
		sb.WriteString("\n=== RECENT ACTIONS ===\n")
		sb.WriteString(strings.Join(dc.RecentActions, ", "))
		sb.WriteString("\n")
	}

	if len(dc.Environment) > 0 {
		keys := make([]string, 0, len(dc.Environment))
		for k := range dc.Environment {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		sb.WriteString("\n=== GALAXY ===\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("%s: %.0f\n", k, dc.Environment[k]))
		}
	}

	sb.WriteString("\n=== DECISION REQUIRED ===\n")
	sb.WriteString(fmt.Sprintf("Requested action: %s", dc.Action.Kind))
	if dc.Action.TargetID != "" {
		sb.WriteString(fmt.Sprintf(" targeting %s", dc.Action.TargetID))
	}
	sb.WriteString("\n")

	return sb.String()
}
