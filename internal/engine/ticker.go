package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MRamiBalles/GalacticCiv/internal/cognition"
	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/events"
)

// Stop reasons carried by the stopped event.
const (
	StopRequested = "requested"
	StopCritical  = "critical"
	StopContext   = "context"
)

// decided pairs an action with the decision the dispatcher produced for it.
type decided struct {
	action   simulation.Action
	module   string
	decision *simulation.Decision
}

// run is the scheduler loop. Ticks never overlap: the next drain starts only
// after the previous update phase returned.
func (e *Engine) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	// In-flight ticks finish even when ctx is cancelled.
	tickCtx := context.WithoutCancel(ctx)
	reason := StopRequested

	defer func() {
		e.logger.Infof("Engine stopped at tick %d (%s)", e.tick.Load(), reason)
		e.publish(events.TypeStopped, e.tick.Load(), "", events.LifecyclePayload{Reason: reason})
		e.mu.Lock()
		e.running = false
		e.stopping = true
		e.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			reason = StopContext
			return
		default:
		}

		tickTime, err := e.runTick(tickCtx)
		if err != nil && IsCritical(err) {
			e.logger.Errorf("Critical simulation error, stopping: %v", err)
			reason = StopCritical
			return
		}

		wait := max(0, e.cfg.TickRate-tickTime)
		timer := time.NewTimer(wait)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			reason = StopContext
			return
		case <-timer.C:
		}
	}
}

// runTick executes one full tick and always emits the tick event.
// Errors are reported as error events; the caller decides whether to stop.
func (e *Engine) runTick(ctx context.Context) (time.Duration, error) {
	tick := e.tick.Add(1)
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "engine.tick")
	span.SetAttributes(attribute.Int64("galaxy.tick", int64(tick)))
	defer span.End()

	processed, err := e.safeProcessTick(ctx, tick)

	tickTime := time.Since(start)
	e.metrics.RecordTick(tickTime)

	if err != nil {
		e.metrics.RecordTickError()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var te *TickError
		phase := Phase("")
		if errors.As(err, &te) {
			phase = te.Phase
		}
		e.logger.Errorf("Tick %d failed: %v", tick, err)
		e.publish(events.TypeError, tick, "", events.ErrorPayload{
			Phase:    string(phase),
			Message:  err.Error(),
			Critical: IsCritical(err),
		})
	}

	span.SetAttributes(attribute.Int("galaxy.actions", processed))
	e.publish(events.TypeTick, tick, "", events.TickPayload{
		Tick:     tick,
		TickTime: tickTime,
		Actions:  processed,
		Metrics:  e.metrics.Snapshot(),
	})
	return tickTime, err
}

// safeProcessTick converts a panic anywhere in the tick into a TickError.
// A panic carrying a Critical error keeps its marker.
func (e *Engine) safeProcessTick(ctx context.Context, tick uint64) (n int, err error) {
	phase := PhaseDrain
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("panic: %v", r)
			if pe, ok := r.(error); ok {
				cause = fmt.Errorf("panic: %w", pe)
			}
			err = &TickError{Tick: tick, Phase: phase, Err: cause, Critical: IsCritical(cause)}
		}
	}()
	return e.processTick(ctx, tick, &phase)
}

// processTick is drain, dispatch, update. phase tracks where a panic happened.
func (e *Engine) processTick(ctx context.Context, tick uint64, phase *Phase) (int, error) {
	*phase = PhaseDrain
	e.enter(tick, PhaseDrain)
	partition := e.queue.DrainAndPartition()
	e.leave(tick, PhaseDrain)

	*phase = PhaseDispatch
	e.enter(tick, PhaseDispatch)
	var results []decided
	for _, domain := range partition.Order {
		module := e.route(domain)
		out := RunBatched(ctx, partition.Actions[domain], e.cfg.BatchSize, e.cfg.MaxConcurrency,
			func(ctx context.Context, a simulation.Action) (decided, error) {
				dc := e.perceiver.BuildContext(a)
				d := e.dispatcher.Decide(ctx, module, cognition.Input{Context: dc, Tick: tick})
				return decided{action: a, module: module, decision: d}, nil
			},
			func(a simulation.Action, err error) {
				e.failAction(tick, a, err)
			},
		)
		results = append(results, out...)
	}
	e.leave(tick, PhaseDispatch)

	*phase = PhaseUpdate
	e.enter(tick, PhaseUpdate)
	applied := 0
	for _, r := range results {
		if err := e.applier.Apply(r.action, r.decision); err != nil {
			if IsCritical(err) {
				e.leave(tick, PhaseUpdate)
				return applied, &TickError{Tick: tick, Phase: PhaseUpdate, Err: err, Critical: true}
			}
			e.failAction(tick, r.action, err)
			continue
		}
		applied++
		e.publish(events.TypeStateChanged, tick, r.action.SubjectID, events.StateChangedPayload{
			ActionID: r.action.ID,
			Domain:   r.action.Domain,
			Module:   r.module,
			Decision: *r.decision.Clone(),
		})
	}
	e.state.SetTime(tick)
	e.metrics.RecordProcessed(applied)
	e.leave(tick, PhaseUpdate)

	return applied, nil
}

func (e *Engine) failAction(tick uint64, a simulation.Action, err error) {
	e.metrics.RecordFailedAction()
	e.logger.Warnf("action %s (%s) for %s failed: %v", a.ID, a.Domain, a.SubjectID, err)
	e.publish(events.TypeActionFailed, tick, a.SubjectID, events.ActionFailedPayload{
		ActionID: a.ID,
		Domain:   a.Domain,
		Reason:   err.Error(),
	})
}

func (e *Engine) enter(tick uint64, p Phase) {
	if e.phaseHook != nil {
		e.phaseHook(tick, p, true)
	}
}

func (e *Engine) leave(tick uint64, p Phase) {
	if e.phaseHook != nil {
		e.phaseHook(tick, p, false)
	}
}
