package world

import (
	"errors"
	"testing"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
)

func seeded() *State {
	s := NewState()
	s.Upsert(Entity{ID: "empire-1", Kind: "empire", Resources: 100, Population: 1000})
	s.Upsert(Entity{ID: "empire-2", Kind: "empire", Resources: 50, Population: 500,
		Relationships: map[string]float64{"empire-1": 95}})
	return s
}

func TestApplyDeductsCostAndUpdatesRelationships(t *testing.T) {
	s := seeded()
	action := simulation.Action{ID: "a1", Domain: simulation.DomainSocialPolitical, SubjectID: "empire-1"}
	d := &simulation.Decision{
		ChosenAction: "alliance",
		ResourceCost: simulation.Float(30),
		SocialImpact: &simulation.SocialImpact{TargetID: "empire-2", Magnitude: 10},
		Validation:   simulation.Validation{Valid: true},
	}

	if err := s.Apply(action, d); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	e1, _ := s.Entity("empire-1")
	if e1.Resources != 70 {
		t.Errorf("expected 70 resources, got %v", e1.Resources)
	}
	if e1.Relationships["empire-2"] != 10 {
		t.Errorf("expected standing 10, got %v", e1.Relationships["empire-2"])
	}
	e2, _ := s.Entity("empire-2")
	if e2.Relationships["empire-1"] != 100 {
		t.Errorf("expected standing clamped to 100, got %v", e2.Relationships["empire-1"])
	}
	if len(e1.RecentActions) != 1 || e1.RecentActions[0] != "alliance" {
		t.Errorf("expected recent action recorded, got %v", e1.RecentActions)
	}

	sum := s.Summary()
	if sum.Statistics.ActionsApplied != 1 || sum.Statistics.ResourcesSpent != 30 {
		t.Errorf("unexpected statistics: %+v", sum.Statistics)
	}
	if sum.Statistics.ByDomain[simulation.DomainSocialPolitical] != 1 {
		t.Errorf("expected domain count, got %v", sum.Statistics.ByDomain)
	}
	if sum.Statistics.Entities != 2 || sum.Statistics.Population != 1500 {
		t.Errorf("unexpected population stats: %+v", sum.Statistics)
	}
}

func TestApplyUnknownSubject(t *testing.T) {
	s := seeded()
	err := s.Apply(simulation.Action{ID: "a1", SubjectID: "ghost"}, simulation.NewFallbackDecision())
	if !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
	if s.Summary().Statistics.ActionsApplied != 0 {
		t.Error("failed apply must not count")
	}
}

func TestRecentActionsAreBounded(t *testing.T) {
	s := seeded()
	for i := 0; i < maxRecentActions+5; i++ {
		d := simulation.NewFallbackDecision()
		if err := s.Apply(simulation.Action{SubjectID: "empire-1"}, d); err != nil {
			t.Fatal(err)
		}
	}
	e, _ := s.Entity("empire-1")
	if len(e.RecentActions) != maxRecentActions {
		t.Errorf("expected %d recent actions, got %d", maxRecentActions, len(e.RecentActions))
	}
	if got := s.Summary().Statistics.FallbackDecisions; got != uint64(maxRecentActions+5) {
		t.Errorf("expected fallback count %d, got %d", maxRecentActions+5, got)
	}
}

func TestEntityReturnsCopy(t *testing.T) {
	s := seeded()
	e, _ := s.Entity("empire-2")
	e.Relationships["empire-1"] = -100

	again, _ := s.Entity("empire-2")
	if again.Relationships["empire-1"] != 95 {
		t.Error("Entity leaked internal map")
	}
}

func TestApplySkipsRejectedSocialImpacts(t *testing.T) {
	tests := []struct {
		name   string
		impact simulation.SocialImpact
		valid  bool
	}{
		{"unknown target", simulation.SocialImpact{TargetID: "ghost", Magnitude: 0}, false},
		{"unknown target with magnitude", simulation.SocialImpact{TargetID: "ghost", Magnitude: -5}, true},
		{"self target", simulation.SocialImpact{TargetID: "empire-1", Magnitude: 0}, false},
		{"zeroed by validation", simulation.SocialImpact{TargetID: "empire-2", Magnitude: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seeded()
			d := &simulation.Decision{
				ChosenAction: "insult",
				SocialImpact: &tt.impact,
				Validation:   simulation.Validation{Valid: tt.valid},
			}
			if err := s.Apply(simulation.Action{ID: "a1", SubjectID: "empire-1"}, d); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}

			e1, _ := s.Entity("empire-1")
			if len(e1.Relationships) != 0 {
				t.Errorf("expected no standings, got %v", e1.Relationships)
			}
			e2, _ := s.Entity("empire-2")
			if e2.Relationships["empire-1"] != 95 {
				t.Errorf("expected target standing untouched, got %v", e2.Relationships["empire-1"])
			}
			if len(e1.RecentActions) != 1 {
				t.Errorf("expected the action still recorded, got %v", e1.RecentActions)
			}
		})
	}
}
