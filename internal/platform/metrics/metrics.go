// Package metrics provides rolling performance telemetry for the tick engine.
// Each engine owns its own Collector so several engines can run side by side.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// emaWeight is the share of the newest sample in the tick time average.
const emaWeight = 0.1

// Collector gathers engine performance metrics.
type Collector struct {
	// Tick metrics
	tickCount      atomic.Int64
	tickLatencyMax atomic.Int64 // nanoseconds
	avgTickTimeEMA float64      // milliseconds, guarded by mu
	lastTickTime   time.Time    // guarded by mu

	// Decision metrics
	processedActions atomic.Int64
	aiCalls          atomic.Int64
	cacheHits        atomic.Int64
	fallbacks        atomic.Int64
	failedActions    atomic.Int64
	tickErrors       atomic.Int64

	// LLM metrics
	llmRequests   atomic.Int64
	llmTokensUsed atomic.Int64
	llmLatencySum atomic.Int64
	llmCostUSD    float64 // guarded by mu

	startTime time.Time
	mu        sync.RWMutex
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	AvgTickTimeEMA        float64   `json:"avg_tick_time_ema_ms"`
	MaxTickTime           float64   `json:"max_tick_time_ms"`
	TickCount             int64     `json:"tick_count"`
	LastTick              time.Time `json:"last_tick"`
	ProcessedActionsTotal int64     `json:"processed_actions_total"`
	AICallsTotal          int64     `json:"ai_calls_total"`
	CacheHitsTotal        int64     `json:"cache_hits_total"`
	FallbacksTotal        int64     `json:"fallbacks_total"`
	FailedActionsTotal    int64     `json:"failed_actions_total"`
	TickErrorsTotal       int64     `json:"tick_errors_total"`
	LLMRequests           int64     `json:"llm_requests"`
	LLMTokensUsed         int64     `json:"llm_tokens_used"`
	LLMCostUSD            float64   `json:"llm_cost_usd"`
	LLMAvgLatencySec      float64   `json:"llm_avg_latency_sec"`
	UptimeSeconds         float64   `json:"uptime_seconds"`
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordTick records a completed tick and folds it into the moving average.
func (c *Collector) RecordTick(latency time.Duration) {
	c.tickCount.Add(1)

	// Update max (compare-and-swap keeps concurrent writers honest)
	for {
		current := c.tickLatencyMax.Load()
		if int64(latency) <= current || c.tickLatencyMax.CompareAndSwap(current, int64(latency)) {
			break
		}
	}

	ms := float64(latency) / float64(time.Millisecond)
	c.mu.Lock()
	c.avgTickTimeEMA = c.avgTickTimeEMA*(1-emaWeight) + ms*emaWeight
	c.lastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordProcessed adds n applied actions.
func (c *Collector) RecordProcessed(n int) {
	c.processedActions.Add(int64(n))
}

// RecordAICall counts one module invocation attempt, successful or not.
func (c *Collector) RecordAICall() {
	c.aiCalls.Add(1)
}

// RecordCacheHit counts a decision served from the cache.
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Add(1)
}

// RecordFallback counts a synthesized fallback decision.
func (c *Collector) RecordFallback() {
	c.fallbacks.Add(1)
}

// RecordFailedAction counts an action skipped by the batcher.
func (c *Collector) RecordFailedAction() {
	c.failedActions.Add(1)
}

// RecordTickError counts a tick that ended in an error.
func (c *Collector) RecordTickError() {
	c.tickErrors.Add(1)
}

// RecordLLMCall records an LLM API call.
func (c *Collector) RecordLLMCall(tokens int, cost float64, latency time.Duration) {
	c.llmRequests.Add(1)
	c.llmTokensUsed.Add(int64(tokens))
	c.llmLatencySum.Add(int64(latency))

	c.mu.Lock()
	c.llmCostUSD += cost
	c.mu.Unlock()
}

// AvgTickTimeEMA returns the moving average tick time in milliseconds.
func (c *Collector) AvgTickTimeEMA() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.avgTickTimeEMA
}

// Snapshot returns the current metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	llmRequests := c.llmRequests.Load()
	var llmAvg float64
	if llmRequests > 0 {
		llmAvg = float64(c.llmLatencySum.Load()) / float64(llmRequests) / 1e9 // seconds
	}

	return Snapshot{
		AvgTickTimeEMA:        c.avgTickTimeEMA,
		MaxTickTime:           float64(c.tickLatencyMax.Load()) / 1e6,
		TickCount:             c.tickCount.Load(),
		LastTick:              c.lastTickTime,
		ProcessedActionsTotal: c.processedActions.Load(),
		AICallsTotal:          c.aiCalls.Load(),
		CacheHitsTotal:        c.cacheHits.Load(),
		FallbacksTotal:        c.fallbacks.Load(),
		FailedActionsTotal:    c.failedActions.Load(),
		TickErrorsTotal:       c.tickErrors.Load(),
		LLMRequests:           llmRequests,
		LLMTokensUsed:         c.llmTokensUsed.Load(),
		LLMCostUSD:            c.llmCostUSD,
		LLMAvgLatencySec:      llmAvg,
		UptimeSeconds:         time.Since(c.startTime).Seconds(),
	}
}

// Source is anything able to report a snapshot; the engine satisfies it too.
type Source interface {
	Snapshot() Snapshot
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		json.NewEncoder(w).Encode(src.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func PrometheusHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		s := src.Snapshot()

		// Tick metrics
		fmt.Fprintf(w, "# HELP galaxy_tick_count Total tick cycles\n")
		fmt.Fprintf(w, "# TYPE galaxy_tick_count counter\n")
		fmt.Fprintf(w, "galaxy_tick_count %d\n\n", s.TickCount)

		fmt.Fprintf(w, "# HELP galaxy_tick_time_ema_ms Moving average tick time\n")
		fmt.Fprintf(w, "# TYPE galaxy_tick_time_ema_ms gauge\n")
		fmt.Fprintf(w, "galaxy_tick_time_ema_ms %.2f\n\n", s.AvgTickTimeEMA)

		fmt.Fprintf(w, "# HELP galaxy_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE galaxy_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "galaxy_tick_latency_max_ms %.2f\n\n", s.MaxTickTime)

		// Decision metrics
		fmt.Fprintf(w, "# HELP galaxy_processed_actions_total Actions applied to world state\n")
		fmt.Fprintf(w, "# TYPE galaxy_processed_actions_total counter\n")
		fmt.Fprintf(w, "galaxy_processed_actions_total %d\n\n", s.ProcessedActionsTotal)

		fmt.Fprintf(w, "# HELP galaxy_ai_calls_total AI module invocations\n")
		fmt.Fprintf(w, "# TYPE galaxy_ai_calls_total counter\n")
		fmt.Fprintf(w, "galaxy_ai_calls_total %d\n\n", s.AICallsTotal)

		fmt.Fprintf(w, "# HELP galaxy_cache_hits_total Decisions served from cache\n")
		fmt.Fprintf(w, "# TYPE galaxy_cache_hits_total counter\n")
		fmt.Fprintf(w, "galaxy_cache_hits_total %d\n\n", s.CacheHitsTotal)

		fmt.Fprintf(w, "# HELP galaxy_fallbacks_total Fallback decisions synthesized\n")
		fmt.Fprintf(w, "# TYPE galaxy_fallbacks_total counter\n")
		fmt.Fprintf(w, "galaxy_fallbacks_total %d\n\n", s.FallbacksTotal)

		fmt.Fprintf(w, "# HELP galaxy_failed_actions_total Actions skipped after worker failure\n")
		fmt.Fprintf(w, "# TYPE galaxy_failed_actions_total counter\n")
		fmt.Fprintf(w, "galaxy_failed_actions_total %d\n\n", s.FailedActionsTotal)

		fmt.Fprintf(w, "# HELP galaxy_tick_errors_total Ticks that ended in error\n")
		fmt.Fprintf(w, "# TYPE galaxy_tick_errors_total counter\n")
		fmt.Fprintf(w, "galaxy_tick_errors_total %d\n\n", s.TickErrorsTotal)

		// LLM metrics
		fmt.Fprintf(w, "# HELP galaxy_llm_requests Total LLM API requests\n")
		fmt.Fprintf(w, "# TYPE galaxy_llm_requests counter\n")
		fmt.Fprintf(w, "galaxy_llm_requests %d\n\n", s.LLMRequests)

		fmt.Fprintf(w, "# HELP galaxy_llm_tokens_used Total tokens consumed\n")
		fmt.Fprintf(w, "# TYPE galaxy_llm_tokens_used counter\n")
		fmt.Fprintf(w, "galaxy_llm_tokens_used %d\n\n", s.LLMTokensUsed)

		fmt.Fprintf(w, "# HELP galaxy_llm_cost_usd Total LLM cost in USD\n")
		fmt.Fprintf(w, "# TYPE galaxy_llm_cost_usd counter\n")
		fmt.Fprintf(w, "galaxy_llm_cost_usd %.4f\n", s.LLMCostUSD)
	}
}
