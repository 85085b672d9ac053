package engine

import (
	"maps"
	"sync"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
)

// Partition is one tick's worth of actions grouped by domain.
// Order lists domains by first appearance; each slice keeps queue order.
type Partition struct {
	Order   []simulation.Domain
	Actions map[simulation.Domain][]simulation.Action
}

// Len returns the number of actions in the partition.
func (p Partition) Len() int {
	n := 0
	for _, actions := range p.Actions {
		n += len(actions)
	}
	return n
}

// ActionQueue accumulates submitted actions until the next tick drains them.
type ActionQueue struct {
	mu    sync.Mutex
	items []simulation.Action
}

// NewActionQueue creates an empty queue.
func NewActionQueue() *ActionQueue {
	return &ActionQueue{}
}

// Enqueue appends a copy of a. Safe to call at any time, including mid-tick.
func (q *ActionQueue) Enqueue(a simulation.Action) {
	a.Payload = maps.Clone(a.Payload)
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()
}

// DrainAndPartition atomically empties the queue and groups what it held.
func (q *ActionQueue) DrainAndPartition() Partition {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	p := Partition{Actions: make(map[simulation.Domain][]simulation.Action)}
	for _, a := range items {
		if _, seen := p.Actions[a.Domain]; !seen {
			p.Order = append(p.Order, a.Domain)
		}
		p.Actions[a.Domain] = append(p.Actions[a.Domain], a)
	}
	return p
}

// Len returns the number of pending actions.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
