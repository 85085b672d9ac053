package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAITimeout means a module did not answer within the AI timeout.
	ErrAITimeout = errors.New("ai module timed out")
	// ErrModuleUnavailable means no module is registered for the route.
	ErrModuleUnavailable = errors.New("ai module unavailable")
	// ErrModuleFailed means the module returned an error, a nil decision or panicked.
	ErrModuleFailed = errors.New("ai module failed")

	ErrNotInitialized     = errors.New("engine not initialized")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrRunning            = errors.New("engine is running")
	ErrInvalidAction      = errors.New("invalid action")
)

// Phase names a step of the per-tick cycle.
type Phase string

const (
	PhaseDrain    Phase = "drain"
	PhaseDispatch Phase = "dispatch"
	PhaseUpdate   Phase = "update"
)

// TickError is an error caught at tick granularity.
type TickError struct {
	Tick     uint64
	Phase    Phase
	Err      error
	Critical bool
}

func (e *TickError) Error() string {
	if e.Critical {
		return fmt.Sprintf("tick %d %s (critical): %v", e.Tick, e.Phase, e.Err)
	}
	return fmt.Sprintf("tick %d %s: %v", e.Tick, e.Phase, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }

type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }
func (e *criticalError) Unwrap() error { return e.err }

// Critical marks err as fatal for the simulation: the engine stops when a tick returns it.
func Critical(err error) error {
	if err == nil {
		return nil
	}
	return &criticalError{err: err}
}

// IsCritical reports whether err, or anything it wraps, is marked critical.
func IsCritical(err error) bool {
	var ce *criticalError
	if errors.As(err, &ce) {
		return true
	}
	var te *TickError
	return errors.As(err, &te) && te.Critical
}
