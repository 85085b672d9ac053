package cognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/infra/ai"
	"github.com/MRamiBalles/GalacticCiv/internal/perception"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

// ErrNoProvider is returned when an LLM module has neither a usable provider nor a fallback.
var ErrNoProvider = errors.New("llm provider unavailable and no fallback configured")

// LLMModule uses an LLM for decision-making, with a rule module behind it.
type LLMModule struct {
	name       string
	role       string
	allowed    []string
	provider   ai.LLMProvider
	fallback   Module // Rule-based fallback, may be nil
	logger     *logger.Logger
	shadowMode atomic.Bool
	maxRetries int
	backoff    time.Duration
}

// NewLLMModule creates an LLM-powered module. fallback answers when the LLM cannot.
func NewLLMModule(name, role string, provider ai.LLMProvider, fallback Module, log *logger.Logger) *LLMModule {
	if log == nil {
		log = logger.Discard()
	}
	return &LLMModule{
		name:       name,
		role:       role,
		provider:   provider,
		fallback:   fallback,
		logger:     log,
		maxRetries: 2,
		backoff:    250 * time.Millisecond,
	}
}

// SetAllowedActions restricts the actions the LLM may choose.
func (m *LLMModule) SetAllowedActions(actions []string) {
	m.allowed = append([]string(nil), actions...)
}

// SetRetries changes the retry policy.
func (m *LLMModule) SetRetries(maxRetries int, backoff time.Duration) {
	m.maxRetries = maxRetries
	m.backoff = backoff
}

// SetShadowMode enables/disables shadow mode.
func (m *LLMModule) SetShadowMode(enabled bool) {
	m.shadowMode.Store(enabled)
	if enabled {
		m.logger.Infof("%s: shadow mode ENABLED (LLM decisions logged, rule decisions applied)", m.name)
	}
}

// IsShadowMode returns the current shadow mode state.
func (m *LLMModule) IsShadowMode() bool {
	return m.shadowMode.Load()
}

// Name returns the module name.
func (m *LLMModule) Name() string { return m.name }

// Initialize fails only when there is no way to produce a decision.
func (m *LLMModule) Initialize(ctx context.Context) error {
	if m.fallback != nil {
		if err := m.fallback.Initialize(ctx); err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
	}
	if (m.provider == nil || !m.provider.IsAvailable()) && m.fallback == nil {
		return ErrNoProvider
	}
	if m.provider != nil && !m.provider.IsAvailable() {
		m.logger.Warnf("%s: %s not configured, rule-based decisions only", m.name, m.provider.Name())
	}
	return nil
}

// ProcessDecision asks the LLM, retrying within ctx, and falls back to rules on failure.
func (m *LLMModule) ProcessDecision(ctx context.Context, in Input) (*simulation.Decision, error) {
	if m.provider == nil || !m.provider.IsAvailable() {
		return m.useFallback(ctx, in, ErrNoProvider)
	}

	decision, err := m.askLLM(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Errorf("%s: LLM failed, using fallback: %v", m.name, err)
		return m.useFallback(ctx, in, err)
	}

	if m.IsShadowMode() && m.fallback != nil {
		m.logger.Event("SHADOW", in.Context.Subject,
			fmt.Sprintf("%s LLM chose %s (not applied)", m.name, decision.ChosenAction))
		return m.fallback.ProcessDecision(ctx, in)
	}
	return decision, nil
}

func (m *LLMModule) useFallback(ctx context.Context, in Input, cause error) (*simulation.Decision, error) {
	if m.fallback == nil {
		return nil, cause
	}
	return m.fallback.ProcessDecision(ctx, in)
}

func (m *LLMModule) askLLM(ctx context.Context, in Input) (*simulation.Decision, error) {
	req := ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: ai.BuildSystemPrompt(m.role, m.allowed)},
			{Role: "user", Content: ai.BuildContextPrompt(perception.Narrative(in.Context), in.Context.RecentActions)},
		},
		MaxTokens:   600,
		Temperature: 0.7,
	}

	// Try LLM with retries
	var resp *ai.CompletionResponse
	var err error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		resp, err = m.provider.Complete(ctx, req)
		if err == nil || errors.Is(err, ai.ErrBudgetExceeded) {
			break
		}
		m.logger.Warnf("%s: LLM attempt %d failed: %v", m.name, attempt+1, err)
		if attempt == m.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * m.backoff):
		}
	}
	if err != nil {
		return nil, err
	}

	// Parse the JSON response
	var out ai.DecisionResponse
	if err := json.Unmarshal([]byte(ai.StripCodeFence(resp.Content)), &out); err != nil {
		m.logger.Event("LLM_RAW", in.Context.Subject, resp.Content)
		return nil, fmt.Errorf("parse LLM response: %w", err)
	}
	if err := ai.ValidateDecisionResponse(&out, m.allowed); err != nil {
		return nil, fmt.Errorf("validate LLM response: %w", err)
	}

	// Log the full reasoning for audit
	m.logger.Event("LLM_REASONING", in.Context.Subject, out.Reasoning)

	decision := &simulation.Decision{
		ChosenAction: out.Decision.ChosenAction,
		Confidence:   out.Decision.Confidence,
		Reasoning:    out.Decision.Justification,
		ResourceCost: out.Decision.ResourceCost,
		Validation:   simulation.Validation{Valid: true},
	}
	if si := out.Decision.SocialImpact; si != nil {
		decision.SocialImpact = &simulation.SocialImpact{
			TargetID:  si.TargetID,
			Magnitude: si.Magnitude,
			Kind:      out.Decision.ChosenAction,
		}
	}
	return decision, nil
}
