// Package optimization turns observed engine metrics into tuning advice.
// Recommendations are advisory: the server applies them only on restart.
package optimization

import (
	"fmt"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/platform/config"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/metrics"
)

// Thresholds used by Analyze.
const (
	tickBudgetShare   = 0.8 // EMA above this share of the tick rate means the tick is saturated
	fallbackRatioMax  = 0.2
	cacheHitRatioMin  = 0.1
	minSamplesForRate = 20
)

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseConcurrency bool
	IncreaseAITimeout   bool
	IncreaseCacheSize   bool
	SlowTickRate        bool
	IncreaseEventBuffer bool
	Notes               []string
}

// Empty reports whether nothing needs tuning.
func (r Recommendations) Empty() bool {
	return !r.IncreaseConcurrency && !r.IncreaseAITimeout && !r.IncreaseCacheSize &&
		!r.SlowTickRate && !r.IncreaseEventBuffer
}

// Analyze examines a metrics snapshot against the running config.
// droppedEvents is the number of bus deliveries lost to full subscriber mailboxes.
func Analyze(s metrics.Snapshot, cfg config.EngineConfig, droppedEvents int64) Recommendations {
	rec := Recommendations{Notes: make([]string, 0)}

	// Check tick latency
	budgetMs := float64(cfg.TickRate) / float64(time.Millisecond)
	if s.TickCount > 0 && budgetMs > 0 {
		if s.AvgTickTimeEMA > budgetMs*tickBudgetShare {
			rec.IncreaseConcurrency = true
			rec.Notes = append(rec.Notes, fmt.Sprintf(
				"Tick time EMA %.1fms uses more than %.0f%% of the %s budget - increase concurrency",
				s.AvgTickTimeEMA, tickBudgetShare*100, cfg.TickRate))
		}
		if s.AvgTickTimeEMA > budgetMs {
			rec.SlowTickRate = true
			rec.Notes = append(rec.Notes, "Ticks overrun the tick rate - consider a slower tick")
		}
	}

	// Check AI health
	if s.AICallsTotal >= minSamplesForRate {
		ratio := float64(s.FallbacksTotal) / float64(s.AICallsTotal)
		if ratio > fallbackRatioMax {
			rec.IncreaseAITimeout = true
			rec.Notes = append(rec.Notes, fmt.Sprintf(
				"%.0f%% of AI calls fell back - raise the AI timeout or check module health", ratio*100))
		}
	}

	// Check cache effectiveness
	lookups := s.AICallsTotal + s.CacheHitsTotal
	if lookups >= minSamplesForRate && s.AICallsTotal > int64(cfg.CacheSize) {
		hitRatio := float64(s.CacheHitsTotal) / float64(lookups)
		if hitRatio < cacheHitRatioMin {
			rec.IncreaseCacheSize = true
			rec.Notes = append(rec.Notes, fmt.Sprintf(
				"Cache hit ratio %.1f%% with more misses than capacity - increase cache size", hitRatio*100))
		}
	}

	// Check event backpressure
	if droppedEvents > 0 {
		rec.IncreaseEventBuffer = true
		rec.Notes = append(rec.Notes, fmt.Sprintf(
			"%d events dropped by slow subscribers - increase event buffer", droppedEvents))
	}

	if s.FailedActionsTotal > 0 {
		rec.Notes = append(rec.Notes, fmt.Sprintf(
			"%d actions skipped after worker failures - check subsystem logs", s.FailedActionsTotal))
	}

	return rec
}

// ApplyRecommendations returns a copy of cfg with the recommendations applied.
func ApplyRecommendations(cfg config.EngineConfig, rec Recommendations) config.EngineConfig {
	out := cfg.Clone()
	if rec.IncreaseConcurrency {
		out.MaxConcurrency *= 2
	}
	if rec.IncreaseAITimeout {
		out.AITimeout = time.Duration(float64(out.AITimeout) * 1.5)
	}
	if rec.IncreaseCacheSize {
		out.CacheSize *= 2
	}
	if rec.SlowTickRate {
		out.TickRate = time.Duration(float64(out.TickRate) * 1.5)
	}
	if rec.IncreaseEventBuffer {
		if out.EventBuffer == 0 {
			out.EventBuffer = 64
		} else {
			out.EventBuffer *= 2
		}
	}
	return out
}
