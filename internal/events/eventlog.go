package events

import (
	"sync"

	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

// defaultRetention bounds the in-memory history; the persister keeps everything.
const defaultRetention = 10000

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event Event) error
}

// EventLog is the in-memory append-only journal of engine events,
// optionally written through to durable storage.
type EventLog struct {
	mu        sync.RWMutex
	events    []Event
	retention int
	persister EventPersister
	logger    *logger.Logger
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister, log *logger.Logger) *EventLog {
	if log == nil {
		log = logger.Discard()
	}
	return &EventLog{
		events:    make([]Event, 0),
		retention: defaultRetention,
		persister: persister,
		logger:    log,
	}
}

// SetRetention changes how many events stay in memory. Non-positive keeps the default.
func (el *EventLog) SetRetention(n int) {
	if n <= 0 {
		n = defaultRetention
	}
	el.mu.Lock()
	el.retention = n
	el.trim()
	el.mu.Unlock()
}

// Append adds a new event to the log. Events are immutable once appended.
// The persister is called synchronously: Append already runs on a bus subscriber goroutine.
func (el *EventLog) Append(event Event) {
	el.mu.Lock()
	el.events = append(el.events, event)
	el.trim()
	el.mu.Unlock()

	if el.persister != nil {
		if err := el.persister.Append(event); err != nil {
			el.logger.Errorf("persist event %s (%s): %v", event.ID, event.Type, err)
		}
	}
}

func (el *EventLog) trim() {
	if over := len(el.events) - el.retention; over > 0 {
		el.events = append(el.events[:0:0], el.events[over:]...)
	}
}

// Subscriber is anything events can be drawn from: a Bus or the engine itself.
type Subscriber interface {
	Subscribe(h Handler, types ...Type) (unsubscribe func())
}

// Attach subscribes the log to every event of src.
func (el *EventLog) Attach(src Subscriber) (detach func()) {
	return src.Subscribe(el.Append)
}

// GetByActor returns all retained events about a specific actor.
func (el *EventLog) GetByActor(actorID string) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all retained events of one type.
func (el *EventLog) GetByType(t Type) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Since returns retained events emitted at or after tick.
func (el *EventLog) Since(tick uint64) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.Tick >= tick {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the retained history.
func (el *EventLog) Replay() []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return append([]Event(nil), el.events...)
}

// Len returns the number of retained events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}
