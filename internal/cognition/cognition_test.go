package cognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/infra/ai"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

type failingInit struct{}

func (failingInit) Initialize(context.Context) error { return errors.New("no model weights") }
func (failingInit) ProcessDecision(context.Context, Input) (*simulation.Decision, error) {
	return nil, errors.New("unreachable")
}

func TestRegistryLoad(t *testing.T) {
	r := NewRegistry(logger.Discard())
	specs := []ModuleSpec{
		{Name: FinancialModule, Factory: func() (Module, error) { return NewFinancialRules(nil), nil }},
		{Name: "broken", Factory: func() (Module, error) { return nil, errors.New("missing config") }},
		{Name: "uninitialized", Factory: func() (Module, error) { return failingInit{}, nil }},
		{Name: "panicky", Factory: func() (Module, error) { panic("boom") }},
		{Name: FinancialModule, Factory: func() (Module, error) { return NewCultureRules(nil), nil }},
		{Name: MilitaryModule, Factory: func() (Module, error) { return NewMilitaryRules(nil), nil }},
	}

	if err := r.Load(context.Background(), specs); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != FinancialModule || names[1] != MilitaryModule {
		t.Errorf("expected [financial military], got %v", names)
	}
	if m, ok := r.Get(FinancialModule); !ok || m.(*RuleModule).Name() != FinancialModule {
		t.Errorf("duplicate entry replaced the first module")
	}
	if _, ok := r.Get("broken"); ok {
		t.Error("broken module must be absent")
	}
	missing := r.Missing()
	for _, name := range []string{"broken", "uninitialized", "panicky"} {
		if missing[name] == nil {
			t.Errorf("expected %s recorded as missing", name)
		}
	}

	if err := r.Load(context.Background(), specs); !errors.Is(err, ErrRegistryLoaded) {
		t.Errorf("expected ErrRegistryLoaded, got %v", err)
	}
}

func ctxFor(kind string, resources float64) simulation.DecisionContext {
	return simulation.DecisionContext{
		Kind:               "economic:business",
		Subject:            "guild-1",
		AvailableResources: resources,
		Relationships:      []simulation.Relationship{{TargetID: "guild-2", Standing: 60}},
		Action:             simulation.ActionSummary{Kind: kind, Payload: map[string]any{"cost": 30.0}},
	}
}

func TestRuleModuleHonoursRequest(t *testing.T) {
	m := NewFinancialRules(nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	d, err := m.ProcessDecision(context.Background(), Input{Context: ctxFor("trade", 80)})
	if err != nil {
		t.Fatalf("ProcessDecision failed: %v", err)
	}
	if d.ChosenAction != "trade" || d.Cost() != 30 || d.IsFallback {
		t.Errorf("unexpected decision: %+v", d)
	}
	if d.Confidence <= 0 || d.Confidence > 1 {
		t.Errorf("confidence out of range: %v", d.Confidence)
	}
}

func TestRuleModulePriorities(t *testing.T) {
	m := NewFinancialRules(nil)

	d, _ := m.ProcessDecision(context.Background(), Input{Context: ctxFor("trade", 5)})
	if d.ChosenAction != "save" {
		t.Errorf("expected treasury preservation to win, got %s", d.ChosenAction)
	}

	d, _ = m.ProcessDecision(context.Background(), Input{Context: ctxFor("", 500)})
	if d.ChosenAction != "invest" || d.Cost() != 50 {
		t.Errorf("expected invest of 10%% surplus, got %+v", d)
	}
}

func TestRuleModuleGuards(t *testing.T) {
	m := NewMilitaryRules(nil)
	dc := simulation.DecisionContext{
		Subject:            "empire-1",
		AvailableResources: 500,
		Relationships:      []simulation.Relationship{{TargetID: "empire-2", Standing: 90}},
		Action: simulation.ActionSummary{Kind: "attack", TargetID: "empire-2",
			Payload: map[string]any{"magnitude": -20}},
	}

	d, err := m.ProcessDecision(context.Background(), Input{Context: dc})
	if err != nil {
		t.Fatal(err)
	}
	if d.ChosenAction != ActionHold || d.SocialImpact != nil || d.Confidence > 0.3 {
		t.Errorf("expected attack on ally to be held, got %+v", d)
	}

	// Overspending is vetoed too
	dc.Relationships = nil
	dc.Action.Payload["cost"] = 1000
	d, _ = m.ProcessDecision(context.Background(), Input{Context: dc})
	if d.ChosenAction != ActionHold {
		t.Errorf("expected overspend to be held, got %s", d.ChosenAction)
	}
}

func TestRuleModuleHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewCultureRules(nil).ProcessDecision(ctx, Input{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRuleModuleWithoutObjectives(t *testing.T) {
	if err := NewRuleModule("empty", nil, nil, nil).Initialize(context.Background()); err == nil {
		t.Error("expected an error for a module without objectives")
	}
}

// scriptedProvider answers from a fixed list of responses.
type scriptedProvider struct {
	mu        sync.Mutex
	available bool
	replies   []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	reply := p.replies[min(i, len(p.replies)-1)]
	return &ai.CompletionResponse{Content: reply, TotalTokens: 42}, nil
}
func (p *scriptedProvider) GetUsageStats() ai.UsageStats { return ai.UsageStats{} }
func (p *scriptedProvider) ResetUsage()                  {}
func (p *scriptedProvider) Name() string                 { return "scripted" }
func (p *scriptedProvider) IsAvailable() bool            { return p.available }

const goodReply = "```json\n" + `{"reasoning":"rich neighbour","decision":{"chosen_action":"trade","confidence":0.9,
"resource_cost":20,"social_impact":{"target_id":"guild-2","magnitude":5},"justification":"profit"}}` + "\n```"

func TestLLMModuleSuccessAfterRetry(t *testing.T) {
	p := &scriptedProvider{available: true, errs: []error{errors.New("502")}, replies: []string{goodReply}}
	m := NewLLMModule(FinancialModule, "treasurer", p, NewFinancialRules(nil), nil)
	m.SetRetries(2, time.Millisecond)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	d, err := m.ProcessDecision(context.Background(), Input{Context: ctxFor("trade", 80)})
	if err != nil {
		t.Fatalf("ProcessDecision failed: %v", err)
	}
	if d.ChosenAction != "trade" || d.Confidence != 0.9 || d.Cost() != 20 {
		t.Errorf("unexpected decision: %+v", d)
	}
	if d.SocialImpact == nil || d.SocialImpact.TargetID != "guild-2" {
		t.Errorf("expected social impact, got %+v", d.SocialImpact)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", p.calls)
	}
}

func TestLLMModuleFallsBackToRules(t *testing.T) {
	p := &scriptedProvider{available: true, replies: []string{"not json"}}
	m := NewLLMModule(FinancialModule, "treasurer", p, NewFinancialRules(nil), nil)

	d, err := m.ProcessDecision(context.Background(), Input{Context: ctxFor("trade", 5)})
	if err != nil {
		t.Fatalf("expected rule fallback, got error %v", err)
	}
	if d.ChosenAction != "save" {
		t.Errorf("expected rule decision, got %s", d.ChosenAction)
	}

	m.SetAllowedActions([]string{"save"})
	p.replies = []string{goodReply}
	d, _ = m.ProcessDecision(context.Background(), Input{Context: ctxFor("trade", 5)})
	if d.ChosenAction != "save" {
		t.Errorf("expected disallowed LLM action to fall back, got %s", d.ChosenAction)
	}
}

func TestLLMModuleShadowMode(t *testing.T) {
	p := &scriptedProvider{available: true, replies: []string{goodReply}}
	m := NewLLMModule(FinancialModule, "treasurer", p, NewFinancialRules(nil), nil)
	m.SetShadowMode(true)

	d, err := m.ProcessDecision(context.Background(), Input{Context: ctxFor("", 5)})
	if err != nil {
		t.Fatal(err)
	}
	if d.ChosenAction != "save" || p.calls != 1 {
		t.Errorf("expected LLM consulted but rule applied, got %s after %d calls", d.ChosenAction, p.calls)
	}
}

func TestLLMModuleWithoutProviderOrFallback(t *testing.T) {
	m := NewLLMModule("oracle", "", &scriptedProvider{}, nil, nil)
	if err := m.Initialize(context.Background()); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
	if _, err := m.ProcessDecision(context.Background(), Input{}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
}

func TestLLMModuleStopsRetryingOnDeadline(t *testing.T) {
	p := &scriptedProvider{available: true, errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}, replies: []string{goodReply}}
	m := NewLLMModule(FinancialModule, "treasurer", p, NewFinancialRules(nil), nil)
	m.SetRetries(2, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := m.ProcessDecision(ctx, Input{Context: ctxFor("trade", 80)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("backoff ignored the deadline")
	}
}

func TestDefaultModuleSpecs(t *testing.T) {
	p := &scriptedProvider{available: true, replies: []string{goodReply}}
	specs := DefaultModuleSpecs(ModuleOptions{Provider: p, LLMModules: []string{FinancialModule}}, nil)

	r := NewRegistry(nil)
	if err := r.Load(context.Background(), specs); err != nil {
		t.Fatal(err)
	}
	if len(r.Names()) != 5 {
		t.Fatalf("expected 5 modules, got %v", r.Names())
	}
	if m, _ := r.Get(FinancialModule); m == nil {
		t.Fatal("financial module missing")
	} else if _, ok := m.(*LLMModule); !ok {
		t.Errorf("expected financial to be LLM-backed, got %T", m)
	}
	if m, _ := r.Get(MilitaryModule); m != nil {
		if _, ok := m.(*RuleModule); !ok {
			t.Errorf("expected military to be rule-based, got %T", m)
		}
	}
}
