package ai

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// GalaxySystemPrompt is the constitutional prompt shared by every LLM-backed module.
// Each module appends its own role and allowed actions.
const GalaxySystemPrompt = `
# IDENTITY: ADVISOR OF THE GALACTIC COUNCIL

You decide on behalf of one actor in a galactic civilization simulation. Your answer
is applied to a shared world, so it must be plausible, affordable and explainable.

## CONSTITUTION (INVIOLABLE)

1. **Scarcity**: never spend more resources than the actor has available.
2. **Accountability**: every decision carries a reasoning trail.
3. **Proportionality**: a single decision moves a relationship by at most 25 points.
4. **Loyalty**: acting against an ally requires an explicit justification.

## RESPONSE FORMAT

Always answer in JSON with this EXACT shape:

{
  "reasoning": "Step by step explanation",
  "decision": {
    "chosen_action": "one of the allowed actions",
    "confidence": 0.0-1.0,
    "resource_cost": 0,
    "social_impact": {"target_id": "entity id", "magnitude": -25..25},
    "justification": "Short narrative reason"
  }
}

Omit "social_impact" when the action does not involve another entity.
`

// BuildSystemPrompt appends a module role and its allowed actions to the constitution.
func BuildSystemPrompt(role string, allowed []string) string {
	var sb strings.Builder
	sb.WriteString(GalaxySystemPrompt)
	sb.WriteString("\n## ROLE\n\n")
	sb.WriteString(role)
	if len(allowed) > 0 {
		sb.WriteString("\n\n## ALLOWED ACTIONS\n\n")
		sb.WriteString(strings.Join(allowed, "|"))
	}
	sb.WriteString("\n")
	return sb.String()
}

// BuildContextPrompt constructs the dynamic context for LLM reasoning.
func BuildContextPrompt(situation string, recentActions []string) string {
	var sb strings.Builder

	sb.WriteString("## CURRENT SITUATION\n\n")
	sb.WriteString(situation)
	sb.WriteString("\n\n## RECENT ACTIONS\n\n")

	if len(recentActions) == 0 {
		sb.WriteString("- none\n")
	}
	for i, a := range recentActions {
		if i >= 10 {
			sb.WriteString("... (older actions omitted)\n")
			break
		}
		sb.WriteString(fmt.Sprintf("- %s\n", a))
	}

	sb.WriteString("\n## TASK\n\n")
	sb.WriteString("Analyse the situation and decide what the actor should do. ")
	sb.WriteString("Explain your reasoning step by step before giving the final decision.\n")

	return sb.String()
}

// DecisionResponse is the expected structured response from the LLM.
type DecisionResponse struct {
	Reasoning string `json:"reasoning"`
	Decision  struct {
		ChosenAction string   `json:"chosen_action"`
		Confidence   float64  `json:"confidence"`
		ResourceCost *float64 `json:"resource_cost,omitempty"`
		SocialImpact *struct {
			TargetID  string  `json:"target_id"`
			Magnitude float64 `json:"magnitude"`
		} `json:"social_impact,omitempty"`
		Justification string `json:"justification"`
	} `json:"decision"`
}

// ValidateDecisionResponse checks if the LLM response is usable.
// An empty allowed list accepts any non-empty action.
func ValidateDecisionResponse(resp *DecisionResponse, allowed []string) error {
	if resp.Reasoning == "" {
		return fmt.Errorf("missing reasoning (chain of thought required)")
	}

	d := resp.Decision
	if d.ChosenAction == "" {
		return fmt.Errorf("missing chosen_action")
	}
	if len(allowed) > 0 && !slices.Contains(allowed, d.ChosenAction) {
		return fmt.Errorf("invalid chosen_action: %s", d.ChosenAction)
	}
	if d.Confidence < 0 || d.Confidence > 1 || math.IsNaN(d.Confidence) {
		return fmt.Errorf("confidence must be 0-1, got: %v", d.Confidence)
	}
	if d.ResourceCost != nil && (*d.ResourceCost < 0 || math.IsInf(*d.ResourceCost, 0) || math.IsNaN(*d.ResourceCost)) {
		return fmt.Errorf("resource_cost must be a non-negative number, got: %v", *d.ResourceCost)
	}
	if d.SocialImpact != nil && d.SocialImpact.TargetID == "" {
		return fmt.Errorf("social_impact without target_id")
	}
	if d.Justification == "" {
		return fmt.Errorf("missing justification (audit trail required)")
	}

	return nil
}

// StripCodeFence removes a markdown code fence some models wrap JSON in.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
