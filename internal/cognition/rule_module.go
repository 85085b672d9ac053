package cognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/perception"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

// Actions every rule module may produce.
const (
	ActionObserve = "observe" // No objective matched
	ActionHold    = "hold"    // A guard vetoed the plan
)

// Plan is what an objective proposes before guards run.
type Plan struct {
	Action        string
	Cost          float64
	Impact        *simulation.SocialImpact
	Justification string
}

// Objective is a goal the module pursues when its check holds.
type Objective struct {
	Name     string
	Priority int // Higher = more important
	Check    func(dc simulation.DecisionContext) bool
	Plan     func(dc simulation.DecisionContext) Plan
}

// Guard is an absolute prohibition. Allow returns false to veto a plan.
type Guard struct {
	Name        string
	Description string
	Allow       func(dc simulation.DecisionContext, p Plan) bool
}

// RuleModule decides deterministically from prioritized objectives and guards.
type RuleModule struct {
	name       string
	objectives []Objective
	guards     []Guard
	logger     *logger.Logger
}

// NewRuleModule creates a rule module. Objectives are evaluated by descending priority.
func NewRuleModule(name string, objectives []Objective, guards []Guard, log *logger.Logger) *RuleModule {
	if log == nil {
		log = logger.Discard()
	}
	sorted := slices.Clone(objectives)
	slices.SortStableFunc(sorted, func(a, b Objective) int { return b.Priority - a.Priority })
	return &RuleModule{
		name:       name,
		objectives: sorted,
		guards:     guards,
		logger:     log,
	}
}

// Name returns the module name.
func (m *RuleModule) Name() string { return m.name }

// Initialize checks the module has something to decide with.
func (m *RuleModule) Initialize(ctx context.Context) error {
	if len(m.objectives) == 0 {
		return errors.New("rule module has no objectives")
	}
	for _, o := range m.objectives {
		if o.Check == nil || o.Plan == nil {
			return fmt.Errorf("objective %s is incomplete", o.Name)
		}
	}
	return nil
}

// ProcessDecision evaluates the context and produces a decision.
func (m *RuleModule) ProcessDecision(ctx context.Context, in Input) (*simulation.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dc := in.Context

	objective, plan := m.selectPlan(dc)
	decision := &simulation.Decision{
		ChosenAction: plan.Action,
		Confidence:   confidenceFor(dc),
		Reasoning:    fmt.Sprintf("%s: %s", objective, plan.Justification),
		Validation:   simulation.Validation{Valid: true},
	}
	if plan.Cost > 0 {
		decision.ResourceCost = simulation.Float(plan.Cost)
	}
	if plan.Impact != nil {
		impact := *plan.Impact
		decision.SocialImpact = &impact
	}

	// Run guards - can this plan be approved?
	if blocked := m.runGuards(dc, plan); blocked != "" {
		m.logger.Warnf("%s: plan %s blocked by guard %s", m.name, plan.Action, blocked)
		decision.ChosenAction = ActionHold
		decision.ResourceCost = nil
		decision.SocialImpact = nil
		decision.Confidence = min(decision.Confidence, 0.3)
		decision.Reasoning = fmt.Sprintf("plan %s blocked by %s", plan.Action, blocked)
	}

	m.logger.Event("DECISION", dc.Subject, fmt.Sprintf("%s chose %s", m.name, decision.ChosenAction))
	return decision, nil
}

func (m *RuleModule) selectPlan(dc simulation.DecisionContext) (string, Plan) {
	for _, o := range m.objectives {
		if o.Check(dc) {
			return o.Name, o.Plan(dc)
		}
	}
	return "NONE", Plan{Action: ActionObserve, Justification: "no objective applies"}
}

// runGuards returns the name of the first guard that vetoes p, or "".
func (m *RuleModule) runGuards(dc simulation.DecisionContext, p Plan) string {
	for _, g := range m.guards {
		if !g.Allow(dc, p) {
			return g.Name
		}
	}
	return ""
}

// confidenceFor is lower in tense situations, where outcomes are harder to predict.
func confidenceFor(dc simulation.DecisionContext) float64 {
	switch perception.TensionLevel(dc) {
	case perception.TensionLow:
		return 0.8
	case perception.TensionMedium:
		return 0.7
	case perception.TensionHigh:
		return 0.6
	default:
		return 0.5
	}
}

// DefaultGuards are the prohibitions every built-in rule module applies.
func DefaultGuards() []Guard {
	return []Guard{
		{
			Name:        "NO_SELF_TARGET",
			Description: "A social effect never targets its own subject",
			Allow: func(dc simulation.DecisionContext, p Plan) bool {
				return p.Impact == nil || p.Impact.TargetID != dc.Subject
			},
		},
		{
			Name:        "NO_BANKRUPTCY",
			Description: "Never plan to spend more than is available",
			Allow: func(dc simulation.DecisionContext, p Plan) bool {
				return p.Cost <= dc.AvailableResources
			},
		},
		{
			Name:        "REQUIRE_AUDIT_TRAIL",
			Description: "Every plan must have a documented reason",
			Allow: func(dc simulation.DecisionContext, p Plan) bool {
				return p.Justification != ""
			},
		},
	}
}

// PayloadFloat reads a numeric payload field, accepting the types JSON decoding and Go callers produce.
func PayloadFloat(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
