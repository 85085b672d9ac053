// Package ai provides the LLM integration layer for the decision modules.
// The LLMProvider interface allows swapping between hosted and local models.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotConfigured is returned when a provider has no credentials.
	ErrNotConfigured = errors.New("llm provider not configured")
	// ErrBudgetExceeded is returned when a call would overrun the spending limits.
	ErrBudgetExceeded = errors.New("llm budget exceeded")
)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest is the input for LLM inference.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Model       string    `json:"model,omitempty"` // Override default model
}

// CompletionResponse is the output from LLM inference.
type CompletionResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	PromptTokens int           `json:"prompt_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalTokens  int           `json:"total_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	Latency      time.Duration `json:"latency"`
	FinishReason string        `json:"finish_reason"`
}

// UsageStats tracks API usage for FinOps.
type UsageStats struct {
	TotalRequests   int       `json:"total_requests"`
	TotalTokens     int       `json:"total_tokens"`
	TotalCostUSD    float64   `json:"total_cost_usd"`
	BudgetRemaining float64   `json:"budget_remaining"`
	LastReset       time.Time `json:"last_reset"`
}

// UsageRecorder receives per-call usage; metrics.Collector implements it.
type UsageRecorder interface {
	RecordLLMCall(tokens int, cost float64, latency time.Duration)
}

// LLMProvider is the agnostic interface for LLM backends.
// Decision modules use this interface without knowing which provider is behind it.
type LLMProvider interface {
	// Complete sends a prompt and returns the LLM response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// GetUsageStats returns current API usage for FinOps monitoring.
	GetUsageStats() UsageStats

	// ResetUsage resets the usage counters (e.g., monthly reset).
	ResetUsage()

	// Name returns the provider name (for logging).
	Name() string

	// IsAvailable checks if the provider is configured.
	IsAvailable() bool
}

// BudgetGate controls spending limits for LLM calls. Safe for concurrent use.
type BudgetGate struct {
	mu                sync.Mutex
	dailyLimitUSD     float64
	monthlyLimitUSD   float64
	currentDaySpend   float64
	currentMonthSpend float64
	lastDayReset      time.Time
	lastMonthReset    time.Time
	now               func() time.Time
}

// NewBudgetGate creates a new budget controller.
func NewBudgetGate(dailyLimit, monthlyLimit float64) *BudgetGate {
	return newBudgetGateAt(dailyLimit, monthlyLimit, time.Now)
}

func newBudgetGateAt(dailyLimit, monthlyLimit float64, now func() time.Time) *BudgetGate {
	t := now()
	return &BudgetGate{
		dailyLimitUSD:   dailyLimit,
		monthlyLimitUSD: monthlyLimit,
		lastDayReset:    t,
		lastMonthReset:  t,
		now:             now,
	}
}

// CanSpend checks if a cost is within budget.
func (bg *BudgetGate) CanSpend(costUSD float64) bool {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.maybeReset()
	return (bg.currentDaySpend+costUSD <= bg.dailyLimitUSD) &&
		(bg.currentMonthSpend+costUSD <= bg.monthlyLimitUSD)
}

// RecordSpend logs a cost.
func (bg *BudgetGate) RecordSpend(costUSD float64) {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.maybeReset()
	bg.currentDaySpend += costUSD
	bg.currentMonthSpend += costUSD
}

// Remaining returns what is left of the monthly budget.
func (bg *BudgetGate) Remaining() float64 {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.maybeReset()
	return bg.monthlyLimitUSD - bg.currentMonthSpend
}

// maybeReset resets counters if day/month has changed. Caller holds mu.
func (bg *BudgetGate) maybeReset() {
	now := bg.now()

	// Daily reset
	if now.YearDay() != bg.lastDayReset.YearDay() || now.Year() != bg.lastDayReset.Year() {
		bg.currentDaySpend = 0
		bg.lastDayReset = now
	}

	// Monthly reset
	if now.Month() != bg.lastMonthReset.Month() || now.Year() != bg.lastMonthReset.Year() {
		bg.currentMonthSpend = 0
		bg.lastMonthReset = now
	}
}

// GetStatus returns a human-readable budget status.
func (bg *BudgetGate) GetStatus() string {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return fmt.Sprintf("Day: $%.2f/%.2f | Month: $%.2f/%.2f",
		bg.currentDaySpend, bg.dailyLimitUSD, bg.currentMonthSpend, bg.monthlyLimitUSD)
}
