package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MRamiBalles/GalacticCiv/internal/cognition"
	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/metrics"
	"github.com/MRamiBalles/GalacticCiv/internal/subsystems"
)

const tracerName = "github.com/MRamiBalles/GalacticCiv/internal/engine"

// InsufficientResources is the issue recorded when a cost is clamped.
const InsufficientResources = "Insufficient resources"

// ModuleSource resolves module names; cognition.Registry implements it.
type ModuleSource interface {
	Get(name string) (cognition.Module, bool)
}

// Dispatcher runs one decision through cache, module call and validation.
type Dispatcher struct {
	modules    ModuleSource
	subsystems *subsystems.Registry
	cache      *DecisionCache
	metrics    *metrics.Collector
	timeout    time.Duration
	logger     *logger.Logger
	tracer     trace.Tracer
}

// NewDispatcher wires a dispatcher. timeout bounds every module call.
func NewDispatcher(
	modules ModuleSource,
	subs *subsystems.Registry,
	cache *DecisionCache,
	m *metrics.Collector,
	timeout time.Duration,
	log *logger.Logger,
) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	if subs == nil {
		subs = subsystems.NewRegistry()
	}
	return &Dispatcher{
		modules:    modules,
		subsystems: subs,
		cache:      cache,
		metrics:    m,
		timeout:    timeout,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
}

// Decide returns a validated decision for in, never an error.
// A cache hit skips the module entirely; module failures yield the fallback decision.
func (d *Dispatcher) Decide(ctx context.Context, moduleName string, in cognition.Input) *simulation.Decision {
	ctx, span := d.tracer.Start(ctx, "engine.decide", trace.WithAttributes(
		attribute.String("galaxy.module", moduleName),
		attribute.String("galaxy.subject", in.Context.Subject),
	))
	defer span.End()

	key, err := Fingerprint(moduleName, in.Context)
	if err != nil {
		// Unserializable context: decide without memoizing
		d.logger.Warnf("decision for %s not cacheable: %v", in.Context.Subject, err)
	} else if cached, ok := d.cache.Get(key); ok {
		d.metrics.RecordCacheHit()
		span.SetAttributes(attribute.Bool("galaxy.cache_hit", true))
		return cached
	}

	decision, err := d.callModule(ctx, moduleName, in)
	d.metrics.RecordAICall()
	if err != nil {
		d.metrics.RecordFallback()
		d.logger.Warnf("module %s for %s: %v, using fallback", moduleName, in.Context.Subject, err)
		span.RecordError(err)
		decision = simulation.NewFallbackDecision()
	}
	span.SetAttributes(attribute.Bool("galaxy.fallback", decision.IsFallback))

	d.validate(in.Context, decision)

	if key != "" {
		d.cache.Put(key, decision)
	}
	return decision
}

type moduleResult struct {
	decision *simulation.Decision
	err      error
}

// callModule races the module against the AI timeout. A timed-out call sees
// its ctx cancelled; whatever it returns afterwards is discarded.
func (d *Dispatcher) callModule(ctx context.Context, name string, in cognition.Input) (*simulation.Decision, error) {
	m, ok := d.modules.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModuleUnavailable, name)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ch := make(chan moduleResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- moduleResult{err: fmt.Errorf("%w: panic: %v", ErrModuleFailed, r)}
			}
		}()
		dec, err := m.ProcessDecision(ctx, in)
		ch <- moduleResult{decision: dec, err: err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w after %s", ErrAITimeout, d.timeout)
		case r.err != nil:
			return nil, fmt.Errorf("%w: %w", ErrModuleFailed, r.err)
		case r.decision == nil:
			return nil, fmt.Errorf("%w: nil decision", ErrModuleFailed)
		}
		return r.decision.Clone(), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrAITimeout, d.timeout)
		}
		return nil, fmt.Errorf("%w: %w", ErrModuleFailed, ctx.Err())
	}
}

// validate checks the decision against the deterministic subsystems and
// applies their corrections in place. Validity only ever goes from true to
// false here: a module's own Valid=false is kept.
func (d *Dispatcher) validate(dc simulation.DecisionContext, decision *simulation.Decision) {
	decision.Confidence = max(0, min(1, decision.Confidence))

	if decision.ResourceCost != nil {
		available := dc.AvailableResources
		canAfford := func(a, c float64) bool { return c <= a }
		if res, ok := d.subsystems.Resources(); ok {
			available = res.Available(dc.Subject)
			canAfford = res.CanAfford
		}
		if !canAfford(available, *decision.ResourceCost) {
			*decision.ResourceCost = available
			decision.AddIssue(InsufficientResources)
			decision.Adjust(simulation.AdjustResourceCost, available)
		}
	}

	if decision.SocialImpact != nil {
		if social, ok := d.subsystems.Social(); ok {
			v := social.ValidateSocialAction(dc.Subject, *decision.SocialImpact)
			decision.Validation.Issues = append(decision.Validation.Issues, v.Issues...)
			if !v.Valid {
				decision.Validation.Valid = false
			}
			decision.ApplyAdjustments(v.Adjustments)
		}
	}
}
