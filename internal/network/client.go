package network

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// ActionRequest is an incoming command from a player.
type ActionRequest struct {
	RequestID string         `json:"request_id,omitempty"` // Echoed back in the reply
	Kind      string         `json:"kind"`                 // "trade", "migrate", "declare_war"...
	Domain    string         `json:"domain"`
	Category  string         `json:"category,omitempty"`
	SubjectID string         `json:"subject_id"`
	TargetID  string         `json:"target_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Reply answers an ActionRequest on the same connection.
type Reply struct {
	Type      string `json:"type"` // "ack" or "rejected"
	RequestID string `json:"request_id,omitempty"`
	ActionID  string `json:"action_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Client is one websocket connection: a spectator and possibly a player.
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte // Broadcasts; closed by the hub
	replies        chan []byte // Answers to this client's own requests
	lastActionTime time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		replies: make(chan []byte, 16),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// ReadPump pumps action requests from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnf("websocket read: %v", err)
			}
			break
		}

		var req ActionRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Warnf("Failed to parse ActionRequest from WebSocket: %v", err)
			c.reply(Reply{Type: "rejected", Reason: "malformed request"})
			continue
		}

		c.reply(c.handleAction(req))
	}
}

func (c *Client) handleAction(req ActionRequest) Reply {
	rejected := func(reason string) Reply {
		return Reply{Type: "rejected", RequestID: req.RequestID, Reason: reason}
	}

	if time.Since(c.lastActionTime) < c.hub.minInterval {
		c.hub.logger.Warn("Rate limit exceeded for client action from " + req.SubjectID)
		return rejected("rate limited")
	}
	c.lastActionTime = time.Now()

	if c.hub.sink == nil {
		return rejected("actions are disabled")
	}

	id, err := c.hub.sink.QueueAction(simulation.Action{
		Kind:      req.Kind,
		Domain:    simulation.Domain(req.Domain),
		Category:  req.Category,
		SubjectID: req.SubjectID,
		TargetID:  req.TargetID,
		Payload:   req.Payload,
	})
	if err != nil {
		return rejected(err.Error())
	}
	c.hub.logger.Event("PLAYER_ACTION", req.SubjectID, req.Kind+" in "+req.Domain)
	return Reply{Type: "ack", RequestID: req.RequestID, ActionID: id}
}

// reply queues r for the write pump without blocking.
func (c *Client) reply(r Reply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.replies <- b:
	default:
		c.hub.logger.Warn("reply queue full, dropping reply for " + r.RequestID)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// Queued messages are flushed one per websocket frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case message := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Spectator UIs are served from other origins
	},
}

// ServeWS upgrades the request and attaches the connection to hub.
func ServeWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warnf("Failed to upgrade websocket connection: %v", err)
			return
		}

		client := NewClient(hub, conn)
		client.Register()

		// Allow collection of memory referenced by the caller by doing all work in
		// new goroutines.
		go client.WritePump()
		go client.ReadPump()
	}
}
