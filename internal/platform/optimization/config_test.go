package optimization

import (
	"testing"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/platform/config"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/metrics"
)

func TestAnalyzeHealthyEngine(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	s := metrics.Snapshot{TickCount: 100, AvgTickTimeEMA: 40, AICallsTotal: 50, CacheHitsTotal: 50}

	rec := Analyze(s, cfg, 0)
	if !rec.Empty() {
		t.Errorf("expected no recommendations, got %+v", rec)
	}
}

func TestAnalyzeSaturatedTick(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.TickRate = 100 * time.Millisecond
	s := metrics.Snapshot{TickCount: 10, AvgTickTimeEMA: 120}

	rec := Analyze(s, cfg, 0)
	if !rec.IncreaseConcurrency || !rec.SlowTickRate {
		t.Fatalf("expected concurrency and tick rate advice, got %+v", rec)
	}

	out := ApplyRecommendations(cfg, rec)
	if out.MaxConcurrency != cfg.MaxConcurrency*2 {
		t.Errorf("expected doubled concurrency, got %d", out.MaxConcurrency)
	}
	if out.TickRate != 150*time.Millisecond {
		t.Errorf("expected 150ms tick rate, got %s", out.TickRate)
	}
}

func TestAnalyzeFallbacksAndDrops(t *testing.T) {
	cfg := config.LowResourceEngineConfig()
	s := metrics.Snapshot{AICallsTotal: 200, FallbacksTotal: 80, CacheHitsTotal: 2, FailedActionsTotal: 3}

	rec := Analyze(s, cfg, 7)
	if !rec.IncreaseAITimeout {
		t.Error("expected AI timeout advice")
	}
	if !rec.IncreaseCacheSize {
		t.Error("expected cache size advice")
	}
	if !rec.IncreaseEventBuffer {
		t.Error("expected event buffer advice")
	}
	if len(rec.Notes) != 4 {
		t.Errorf("expected 4 notes, got %d: %v", len(rec.Notes), rec.Notes)
	}

	out := ApplyRecommendations(cfg, rec)
	if out.AITimeout != 15*time.Second || out.CacheSize != 200 || out.EventBuffer != 128 {
		t.Errorf("unexpected tuned config: %+v", out)
	}
	if cfg.CacheSize != 100 {
		t.Error("ApplyRecommendations mutated its input")
	}
}
