package cognition

import (
	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/infra/ai"
	"github.com/MRamiBalles/GalacticCiv/internal/perception"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

// Built-in module names.
const (
	PsychologyModule = "psychology"
	FinancialModule  = "financial"
	CultureModule    = "culture"
	PoliticalModule  = "political"
	MilitaryModule   = "military"
)

// honourRequest carries out whatever the subject asked for.
// Payload "cost" and "magnitude" become the resource cost and social impact.
func honourRequest() Objective {
	return Objective{
		Name:     "HONOUR_REQUEST",
		Priority: 1,
		Check:    func(dc simulation.DecisionContext) bool { return dc.Action.Kind != "" },
		Plan: func(dc simulation.DecisionContext) Plan {
			p := Plan{Action: dc.Action.Kind, Justification: "requested by " + dc.Subject}
			if cost, ok := PayloadFloat(dc.Action.Payload, "cost"); ok && cost > 0 {
				p.Cost = cost
			}
			if magnitude, ok := PayloadFloat(dc.Action.Payload, "magnitude"); ok && dc.Action.TargetID != "" {
				p.Impact = &simulation.SocialImpact{TargetID: dc.Action.TargetID, Magnitude: magnitude, Kind: dc.Action.Kind}
			}
			return p
		},
	}
}

func tension(dc simulation.DecisionContext) string { return perception.TensionLevel(dc) }

// NewPsychologyRules decides for individual characters.
func NewPsychologyRules(log *logger.Logger) *RuleModule {
	return NewRuleModule(PsychologyModule, []Objective{
		{
			Name:     "RECOVER",
			Priority: 3,
			Check:    func(dc simulation.DecisionContext) bool { return tension(dc) == perception.TensionCritical },
			Plan: func(dc simulation.DecisionContext) Plan {
				return Plan{Action: "withdraw", Justification: "surrounded by enemies, retreat to recover"}
			},
		},
		{
			Name:     "SEEK_COMPANY",
			Priority: 2,
			Check: func(dc simulation.DecisionContext) bool {
				return dc.Action.Kind == "" && len(dc.Relationships) == 0
			},
			Plan: func(dc simulation.DecisionContext) Plan {
				return Plan{Action: "explore", Justification: "no known contacts"}
			},
		},
		honourRequest(),
	}, DefaultGuards(), log)
}

// NewFinancialRules decides for individual and business economics.
func NewFinancialRules(log *logger.Logger) *RuleModule {
	return NewRuleModule(FinancialModule, []Objective{
		{
			Name:     "PRESERVE_TREASURY",
			Priority: 3,
			Check:    func(dc simulation.DecisionContext) bool { return dc.AvailableResources < 10 },
			Plan: func(dc simulation.DecisionContext) Plan {
				return Plan{Action: "save", Justification: "treasury nearly empty"}
			},
		},
		honourRequest(),
		{
			Name:     "INVEST_SURPLUS",
			Priority: 0,
			Check:    func(dc simulation.DecisionContext) bool { return dc.AvailableResources >= 100 },
			Plan: func(dc simulation.DecisionContext) Plan {
				return Plan{Action: "invest", Cost: dc.AvailableResources * 0.1, Justification: "idle surplus"}
			},
		},
	}, DefaultGuards(), log)
}

// NewCultureRules decides cultural actions.
func NewCultureRules(log *logger.Logger) *RuleModule {
	return NewRuleModule(CultureModule, []Objective{
		honourRequest(),
		{
			Name:     "CELEBRATE",
			Priority: 0,
			Check: func(dc simulation.DecisionContext) bool {
				return dc.AvailableResources >= 50 && tension(dc) == perception.TensionLow
			},
			Plan: func(dc simulation.DecisionContext) Plan {
				return Plan{Action: "festival", Cost: 10, Justification: "peaceful and prosperous"}
			},
		},
	}, DefaultGuards(), log)
}

// NewPoliticalRules decides diplomacy.
func NewPoliticalRules(log *logger.Logger) *RuleModule {
	return NewRuleModule(PoliticalModule, []Objective{
		{
			Name:     "DE_ESCALATE",
			Priority: 2,
			Check: func(dc simulation.DecisionContext) bool {
				t := tension(dc)
				return dc.Action.TargetID != "" && (t == perception.TensionHigh || t == perception.TensionCritical)
			},
			Plan: func(dc simulation.DecisionContext) Plan {
				return Plan{
					Action:        "negotiate",
					Impact:        &simulation.SocialImpact{TargetID: dc.Action.TargetID, Magnitude: 10, Kind: "negotiate"},
					Justification: "tension too high for " + dc.Action.Kind,
				}
			},
		},
		honourRequest(),
	}, DefaultGuards(), log)
}

// NewMilitaryRules decides military actions.
func NewMilitaryRules(log *logger.Logger) *RuleModule {
	guards := append(DefaultGuards(), Guard{
		Name:        "NO_WAR_ON_ALLIES",
		Description: "Never attack an allied entity",
		Allow: func(dc simulation.DecisionContext, p Plan) bool {
			if p.Impact == nil || p.Impact.Magnitude >= 0 {
				return true
			}
			r, ok := dc.RelationshipWith(p.Impact.TargetID)
			return !ok || !r.IsAlly()
		},
	})
	return NewRuleModule(MilitaryModule, []Objective{
		{
			Name:     "FORTIFY",
			Priority: 3,
			Check:    func(dc simulation.DecisionContext) bool { return tension(dc) == perception.TensionCritical },
			Plan: func(dc simulation.DecisionContext) Plan {
				return Plan{Action: "fortify", Cost: dc.AvailableResources * 0.2, Justification: "critical threat level"}
			},
		},
		honourRequest(),
	}, guards, log)
}

// ModuleOptions configures DefaultModuleSpecs.
type ModuleOptions struct {
	Provider   ai.LLMProvider // nil or unavailable keeps every module rule-based
	LLMModules []string       // Modules that consult the provider first
	ShadowMode bool           // LLM answers are logged but the rule answer is used
}

// DefaultModuleSpecs returns the built-in modules, optionally LLM-backed.
func DefaultModuleSpecs(opts ModuleOptions, log *logger.Logger) []ModuleSpec {
	rules := map[string]func(*logger.Logger) *RuleModule{
		PsychologyModule: NewPsychologyRules,
		FinancialModule:  NewFinancialRules,
		CultureModule:    NewCultureRules,
		PoliticalModule:  NewPoliticalRules,
		MilitaryModule:   NewMilitaryRules,
	}
	llm := make(map[string]bool, len(opts.LLMModules))
	for _, name := range opts.LLMModules {
		llm[name] = true
	}

	names := []string{PsychologyModule, FinancialModule, CultureModule, PoliticalModule, MilitaryModule}
	specs := make([]ModuleSpec, 0, len(names))
	for _, name := range names {
		build := rules[name]
		useLLM := opts.Provider != nil && llm[name]
		specs = append(specs, ModuleSpec{
			Name: name,
			Factory: func() (Module, error) {
				rm := build(log)
				if !useLLM {
					return rm, nil
				}
				m := NewLLMModule(name, roles[name], opts.Provider, rm, log)
				m.SetShadowMode(opts.ShadowMode)
				return m, nil
			},
		})
	}
	return specs
}

var roles = map[string]string{
	PsychologyModule: "You are the inner voice of a single character. Choose what they do next.",
	FinancialModule:  "You are the treasurer of an economic actor. Grow wealth without going bankrupt.",
	CultureModule:    "You are the cultural council. Shape traditions, festivals and identity.",
	PoliticalModule:  "You are the chancellor. Manage alliances, treaties and rivalries.",
	MilitaryModule:   "You are the high command. Protect the realm and never betray allies.",
}
