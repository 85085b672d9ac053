// Package engine contains the tick scheduler and the decision pipeline.
// This is the heartbeat of the galaxy.
//
// ARCHITECTURAL RULE: only the update phase writes the world, single-threaded,
// in queue order. Decisions are computed concurrently but applied serially.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MRamiBalles/GalacticCiv/internal/cognition"
	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/events"
	"github.com/MRamiBalles/GalacticCiv/internal/perception"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/config"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/metrics"
	"github.com/MRamiBalles/GalacticCiv/internal/subsystems"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// PhaseHook observes the per-tick cycle. started is false when the phase ends.
type PhaseHook func(tick uint64, phase Phase, started bool)

// PerformanceMetrics is the engine health summary returned to API callers.
type PerformanceMetrics struct {
	AvgTickTimeEMA        float64 `json:"avg_tick_time_ema_ms"`
	ProcessedActionsTotal int64   `json:"processed_actions_total"`
	AICallsTotal          int64   `json:"ai_calls_total"`
	CacheHitsTotal        int64   `json:"cache_hits_total"`
	FallbacksTotal        int64   `json:"fallbacks_total"`
	FailedActionsTotal    int64   `json:"failed_actions_total"`
	DroppedEvents         int64   `json:"dropped_events"`
	Tick                  uint64  `json:"tick"`
	Running               bool    `json:"running"`
	CacheSize             int     `json:"cache_size"`
	QueueSize             int     `json:"queue_size"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithModules sets the modules loaded by Initialize.
func WithModules(specs []cognition.ModuleSpec) Option {
	return func(e *Engine) { e.moduleSpecs = specs }
}

// WithState replaces the world store.
func WithState(s *world.State) Option {
	return func(e *Engine) { e.state = s }
}

// WithSubsystems replaces the default subsystem registry.
func WithSubsystems(r *subsystems.Registry) Option {
	return func(e *Engine) { e.subsystems = r }
}

// WithApplier routes the update phase through a.
func WithApplier(a world.Applier) Option {
	return func(e *Engine) { e.applier = a }
}

// WithMetrics shares c with other components, such as the LLM provider's usage recorder.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithPhaseHook installs a phase observer. It runs on the scheduler goroutine.
func WithPhaseHook(h PhaseHook) Option {
	return func(e *Engine) { e.phaseHook = h }
}

// Engine is the tick scheduler. It exclusively owns the queue, cache, metrics and world.
type Engine struct {
	cfg    config.EngineConfig
	logger *logger.Logger
	tracer trace.Tracer

	state       *world.State
	applier     world.Applier
	moduleSpecs []cognition.ModuleSpec
	modules     *cognition.Registry
	subsystems  *subsystems.Registry
	perceiver   *perception.Perceiver
	queue       *ActionQueue
	cache       *DecisionCache
	dispatcher  *Dispatcher
	metrics     *metrics.Collector
	bus         *events.Bus
	phaseHook   PhaseHook

	tick atomic.Uint64

	mu          sync.Mutex
	initialized bool
	running     bool
	stopping    bool
	stopCh      chan struct{}
	done        chan struct{}
}

// New builds an engine. The configuration is copied and immutable afterwards.
func New(cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	e := &Engine{
		cfg:    cfg.Clone(),
		tracer: otel.Tracer(tracerName),
		queue:  NewActionQueue(),
		cache:  NewDecisionCache(cfg.CacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logger.Discard()
	}
	if e.state == nil {
		e.state = world.NewState()
	}
	if e.applier == nil {
		e.applier = e.state
	}
	if e.subsystems == nil {
		e.subsystems = subsystems.NewDefaultRegistry(e.state)
	}

	if e.metrics == nil {
		e.metrics = metrics.NewCollector()
	}
	e.bus = events.NewBus(e.cfg.EventBuffer, e.logger)
	e.modules = cognition.NewRegistry(e.logger)
	e.perceiver = perception.NewPerceiver(e.subsystems)
	e.dispatcher = NewDispatcher(e.modules, e.subsystems, e.cache, e.metrics, e.cfg.AITimeout, e.logger)

	return e, nil
}

// Initialize loads the module registry and announces the engine. Callable once.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return ErrAlreadyInitialized
	}
	if err := e.modules.Load(ctx, e.moduleSpecs); err != nil {
		return fmt.Errorf("load modules: %w", err)
	}
	e.initialized = true

	for name, err := range e.modules.Missing() {
		e.logger.Warnf("module %s will fall back on every decision: %v", name, err)
	}
	e.logger.Infof("Engine initialized: modules=%v subsystems=%v", e.modules.Names(), e.subsystems.Names())
	e.publish(events.TypeInitialized, 0, "", events.LifecyclePayload{
		Modules:    e.modules.Names(),
		Subsystems: e.subsystems.Names(),
	})
	return nil
}

// Start launches the tick loop. Calling it while running is a no-op.
// The loop ends on Stop, on a critical tick error, or when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return ErrNotInitialized
	}
	if e.running {
		return nil
	}
	e.running = true
	e.stopping = false
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})

	e.logger.Infof("Engine started: tick rate %s, batch %d, concurrency %d",
		e.cfg.TickRate, e.cfg.BatchSize, e.cfg.MaxConcurrency)
	e.publish(events.TypeStarted, e.tick.Load(), "", events.LifecyclePayload{})

	go e.run(ctx, e.stopCh, e.done)
	return nil
}

// Stop asks the loop to finish and waits until the in-flight tick has been
// applied and the stopped event published. ctx only bounds the wait.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	if !e.stopping {
		e.stopping = true
		close(e.stopCh)
	}
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Done returns a channel closed when the current run ends, or nil if never started.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// QueueAction submits an action for the next tick and returns its ID.
func (e *Engine) QueueAction(a simulation.Action) (string, error) {
	if a.Domain == "" || a.SubjectID == "" {
		return "", fmt.Errorf("%w: domain and subject are required", ErrInvalidAction)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now()
	}
	a.EnqueuedAtTick = e.tick.Load()
	e.queue.Enqueue(a)
	return a.ID, nil
}

// Tick returns the number of the last tick started.
func (e *Engine) Tick() uint64 {
	return e.tick.Load()
}

// GetPerformanceMetrics returns the engine health summary.
func (e *Engine) GetPerformanceMetrics() PerformanceMetrics {
	s := e.metrics.Snapshot()
	return PerformanceMetrics{
		AvgTickTimeEMA:        s.AvgTickTimeEMA,
		ProcessedActionsTotal: s.ProcessedActionsTotal,
		AICallsTotal:          s.AICallsTotal,
		CacheHitsTotal:        s.CacheHitsTotal,
		FallbacksTotal:        s.FallbacksTotal,
		FailedActionsTotal:    s.FailedActionsTotal,
		DroppedEvents:         e.bus.Dropped(),
		Tick:                  e.tick.Load(),
		Running:               e.Running(),
		CacheSize:             e.cache.Len(),
		QueueSize:             e.queue.Len(),
	}
}

// Snapshot exposes the raw collector, so the engine can back the metrics handlers.
func (e *Engine) Snapshot() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// GetGameState returns the read-only world summary.
func (e *Engine) GetGameState() world.Summary {
	return e.state.Summary()
}

// World returns the read-only view of the world.
func (e *Engine) World() world.View {
	return e.state
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() config.EngineConfig {
	return e.cfg.Clone()
}

// Subscribe registers a handler for engine events (all types when none given).
func (e *Engine) Subscribe(h events.Handler, types ...events.Type) (unsubscribe func()) {
	return e.bus.Subscribe(h, types...)
}

// Seed inserts entities into the world. Rejected while the loop runs.
func (e *Engine) Seed(entities ...world.Entity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunning
	}
	for _, ent := range entities {
		e.state.Upsert(ent)
	}
	return nil
}

// Restore resumes from persisted state: entities are seeded and the tick
// counter continues after tick.
func (e *Engine) Restore(tick uint64, entities []world.Entity) error {
	if err := e.Seed(entities...); err != nil {
		return err
	}
	e.tick.Store(tick)
	e.state.SetTime(tick)
	e.logger.Infof("Engine restored at tick %d with %d entities", tick, len(entities))
	return nil
}

// Close stops the loop if needed and drains every subscriber.
func (e *Engine) Close(ctx context.Context) error {
	err := e.Stop(ctx)
	e.bus.Close()
	return err
}

// route resolves the module for a domain: exact match first, then its tier.
func (e *Engine) route(d simulation.Domain) string {
	if m, ok := e.cfg.Routes[string(d)]; ok {
		return m
	}
	return e.cfg.Routes[d.Tier()]
}

func (e *Engine) publish(t events.Type, tick uint64, actor string, payload any) {
	e.bus.Publish(events.New(t, tick, actor, payload))
}
