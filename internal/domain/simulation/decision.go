package simulation

import "maps"

// Fallback decision values, used when no module produced an answer in time.
const (
	FallbackAction     = "wait"
	FallbackConfidence = 0.1
	FallbackReasoning  = "fallback"
)

// SocialImpact describes how a decision changes the relationship between two entities.
type SocialImpact struct {
	TargetID  string  `json:"target_id"`
	Magnitude float64 `json:"magnitude"` // Negative is hostile
	Kind      string  `json:"kind,omitempty"`
}

// Validation is the outcome of checking a decision against the deterministic subsystems.
type Validation struct {
	Valid       bool           `json:"valid"`
	Issues      []string       `json:"issues,omitempty"`
	Adjustments map[string]any `json:"adjustments,omitempty"`
}

// Decision is what an AI module (or the fallback generator) answers for one action.
type Decision struct {
	ChosenAction string        `json:"chosen_action"`
	Confidence   float64       `json:"confidence"` // 0.0 - 1.0
	Reasoning    string        `json:"reasoning"`
	IsFallback   bool          `json:"is_fallback"`
	ResourceCost *float64      `json:"resource_cost,omitempty"`
	SocialImpact *SocialImpact `json:"social_impact,omitempty"`
	Validation   Validation    `json:"validation"`
}

// NewFallbackDecision returns the low-confidence default decision.
func NewFallbackDecision() *Decision {
	return &Decision{
		ChosenAction: FallbackAction,
		Confidence:   FallbackConfidence,
		Reasoning:    FallbackReasoning,
		IsFallback:   true,
		Validation:   Validation{Valid: true},
	}
}

// Clone returns a deep copy of the decision.
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	out := *d
	if d.ResourceCost != nil {
		cost := *d.ResourceCost
		out.ResourceCost = &cost
	}
	if d.SocialImpact != nil {
		impact := *d.SocialImpact
		out.SocialImpact = &impact
	}
	out.Validation.Issues = append([]string(nil), d.Validation.Issues...)
	out.Validation.Adjustments = maps.Clone(d.Validation.Adjustments)
	return &out
}

// AddIssue records a validation problem and marks the decision invalid.
func (d *Decision) AddIssue(issue string) {
	d.Validation.Valid = false
	d.Validation.Issues = append(d.Validation.Issues, issue)
}

// Adjust records a correction applied to the decision.
func (d *Decision) Adjust(field string, value any) {
	if d.Validation.Adjustments == nil {
		d.Validation.Adjustments = make(map[string]any)
	}
	d.Validation.Adjustments[field] = value
}

// Cost returns the resource cost or zero.
func (d *Decision) Cost() float64 {
	if d.ResourceCost == nil {
		return 0
	}
	return *d.ResourceCost
}

// Float is a helper for optional numeric fields.
func Float(v float64) *float64 { return &v }

// Adjustment keys understood by ApplyAdjustments.
const (
	AdjustMagnitude        = "socialImpact.magnitude"
	AdjustConfidenceFactor = "confidence.factor"
	AdjustResourceCost     = "resourceCost"
)

// ApplyAdjustments records adj on the decision and applies the keys it knows in place.
// Unknown keys are kept in Validation.Adjustments for downstream consumers.
func (d *Decision) ApplyAdjustments(adj map[string]any) {
	for key, value := range adj {
		d.Adjust(key, value)

		v, ok := value.(float64)
		if !ok {
			continue
		}
		switch key {
		case AdjustMagnitude:
			if d.SocialImpact != nil {
				d.SocialImpact.Magnitude = v
			}
		case AdjustConfidenceFactor:
			d.Confidence = max(0, min(1, d.Confidence*v))
		case AdjustResourceCost:
			if d.ResourceCost != nil {
				*d.ResourceCost = v
			}
		}
	}
}
