package simulation

// Relationship is the standing between a subject and another entity.
type Relationship struct {
	TargetID string  `json:"target_id"`
	Standing float64 `json:"standing"` // -100 (hostile) to 100 (allied)
}

// IsAlly reports whether the standing counts as an alliance.
func (r Relationship) IsAlly() bool { return r.Standing >= AllyThreshold }

// AllyThreshold is the minimum standing for two entities to be allies.
const AllyThreshold = 50.0

// DecisionContext is the snapshot a module decides on.
// Built fresh for every decision and never persisted. Field order is part of the
// fingerprint: the context is serialized as JSON, so keep it deterministic.
type DecisionContext struct {
	Kind               string             `json:"kind"`
	Subject            string             `json:"subject"`
	Location           string             `json:"location,omitempty"`
	Relationships      []Relationship     `json:"relationships,omitempty"`
	AvailableResources float64            `json:"available_resources"`
	RecentActions      []string           `json:"recent_actions,omitempty"`
	Environment        map[string]float64 `json:"environment,omitempty"`
	Action             ActionSummary      `json:"action"`
}

// ActionSummary is the part of an action visible to a module.
// IDs and timestamps are left out so identical requests share a fingerprint.
type ActionSummary struct {
	Kind     string         `json:"kind"`
	Domain   Domain         `json:"domain"`
	Category string         `json:"category,omitempty"`
	TargetID string         `json:"target_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Summarize strips the per-submission identity from an action.
func Summarize(a Action) ActionSummary {
	return ActionSummary{
		Kind:     a.Kind,
		Domain:   a.Domain,
		Category: a.Category,
		TargetID: a.TargetID,
		Payload:  a.Payload,
	}
}

// RelationshipWith returns the relationship with target, if any.
func (c *DecisionContext) RelationshipWith(target string) (Relationship, bool) {
	for _, r := range c.Relationships {
		if r.TargetID == target {
			return r, true
		}
	}
	return Relationship{}, false
}
