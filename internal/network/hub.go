// Package network streams engine events to websocket spectators and accepts
// actions submitted by players over the same connection.
package network

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/events"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

const broadcastBuffer = 256

// ActionSink accepts player actions. The engine implements it.
type ActionSink interface {
	QueueAction(a simulation.Action) (string, error)
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // Closed when Run returns
	mu         sync.Mutex
	logger     *logger.Logger

	sink        ActionSink
	minInterval time.Duration
	dropped     atomic.Int64
}

// NewHub initializes a new WebSocket Hub. Inbound actions go to sink.
func NewHub(sink ActionSink, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		broadcast:   make(chan []byte, broadcastBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		clients:     make(map[*Client]bool),
		logger:      log,
		sink:        sink,
		minInterval: 100 * time.Millisecond,
	}
}

// SetRateLimit sets the minimum delay between two actions of one client.
func (h *Hub) SetRateLimit(d time.Duration) {
	h.minInterval = d
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow spectator: cut it loose
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastEvent serializes an engine event and queues it for every client.
// It never blocks the caller; events are dropped while the broadcast queue is full.
func (h *Hub) BroadcastEvent(event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorf("Failed to serialize %s event for WebSocket broadcast: %v", event.Type, err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			h.logger.Warnf("broadcast queue full, %d events dropped so far", n)
		}
	}
}

// Attach streams the given event types from src (all types when none given).
func (h *Hub) Attach(src events.Subscriber, types ...events.Type) (detach func()) {
	return src.Subscribe(h.BroadcastEvent, types...)
}
