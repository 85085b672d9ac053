// Package events carries engine notifications to subscribers.
// The engine publishes, never waits: persistence, UI and logging consume at their own pace.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/metrics"
)

// Type identifies an engine event variant.
type Type string

const (
	TypeInitialized  Type = "initialized"
	TypeStarted      Type = "started"
	TypeStopped      Type = "stopped"
	TypeTick         Type = "tick"
	TypeError        Type = "error"
	TypeStateChanged Type = "stateChanged"
	TypeActionFailed Type = "actionFailed"
)

// Event is an immutable notification emitted by the engine.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"` // Subject of the action, if any
	Payload   any       `json:"payload,omitempty"`
}

// TickPayload is attached to TypeTick.
type TickPayload struct {
	Tick     uint64           `json:"tick"`
	TickTime time.Duration    `json:"tick_time"`
	Actions  int              `json:"actions"`
	Metrics  metrics.Snapshot `json:"metrics"`
}

// ErrorPayload is attached to TypeError.
type ErrorPayload struct {
	Phase    string `json:"phase"`
	Message  string `json:"message"`
	Critical bool   `json:"critical"`
}

// StateChangedPayload is attached to TypeStateChanged, once per applied decision.
type StateChangedPayload struct {
	ActionID string              `json:"action_id"`
	Domain   simulation.Domain   `json:"domain"`
	Module   string              `json:"module"`
	Decision simulation.Decision `json:"decision"`
}

// ActionFailedPayload is attached to TypeActionFailed when the batcher skips an item.
type ActionFailedPayload struct {
	ActionID string            `json:"action_id"`
	Domain   simulation.Domain `json:"domain"`
	Reason   string            `json:"reason"`
}

// LifecyclePayload is attached to initialized, started and stopped.
type LifecyclePayload struct {
	Modules    []string `json:"modules,omitempty"`
	Subsystems []string `json:"subsystems,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// New builds an event with a fresh ID and timestamp.
func New(t Type, tick uint64, actorID string, payload any) Event {
	return Event{
		ID:        GenerateEventID(),
		Type:      t,
		Tick:      tick,
		Timestamp: time.Now(),
		ActorID:   actorID,
		Payload:   payload,
	}
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
