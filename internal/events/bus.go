package events

import (
	"sync"
	"sync/atomic"

	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

const defaultMailbox = 64

// Handler consumes events on the subscriber's own goroutine.
type Handler func(Event)

type subscription struct {
	id      int
	types   map[Type]bool // nil means every type
	mailbox chan Event
	done    chan struct{}
}

// Bus fans events out to subscribers. Each subscriber owns a buffered mailbox
// drained by a dedicated goroutine; a full mailbox drops the event instead of
// blocking the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	nextID  int
	buffer  int
	closed  bool
	dropped atomic.Int64
	logger  *logger.Logger
}

// NewBus creates a bus whose mailboxes hold buffer events. A non-positive buffer uses the default.
func NewBus(buffer int, log *logger.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultMailbox
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Bus{
		subs:   make(map[int]*subscription),
		buffer: buffer,
		logger: log,
	}
}

// Subscribe registers h for the given types (all types when none are given).
// The returned function unsubscribes and waits for the mailbox to drain.
func (b *Bus) Subscribe(h Handler, types ...Type) (unsubscribe func()) {
	sub := &subscription{
		mailbox: make(chan Event, b.buffer),
		done:    make(chan struct{}),
	}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.done)
		return func() {}
	}
	sub.id = b.nextID
	b.nextID++
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.drain(sub, h)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[sub.id]; ok {
				delete(b.subs, sub.id)
				close(sub.mailbox)
			}
			b.mu.Unlock()
			<-sub.done
		})
	}
}

func (b *Bus) drain(sub *subscription, h Handler) {
	defer close(sub.done)
	for e := range sub.mailbox {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("event subscriber panicked on %s: %v", e.Type, r)
		}
	}()
	h(e)
}

// Publish hands e to every interested subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.types != nil && !sub.types[e.Type] {
			continue
		}
		select {
		case sub.mailbox <- e:
		default:
			if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
				b.logger.Warnf("event mailbox full, dropped %s (total dropped: %d)", e.Type, n)
			}
		}
	}
}

// Dropped returns how many deliveries were lost to full mailboxes.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close unsubscribes everyone and waits until every mailbox has drained.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		close(sub.mailbox)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}
