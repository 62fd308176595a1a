package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/pollstatus"
	"github.com/abrezinsky/votedesk/internal/services"
	"github.com/abrezinsky/votedesk/internal/voteflow"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // served on localhost only
	},
}

// ViewSource hands out shared poll views for the lifetime of a subscription
type ViewSource interface {
	AcquireView(ctx context.Context, pollID string) (*voteflow.View, error)
	ReleaseView(pollID string)
}

type pollMessage struct {
	pollID string
	msg    models.WSMessage
}

// Hub maintains the set of active clients and pushes poll updates to the
// clients subscribed to that poll
type Hub struct {
	log        logger.Logger
	views      ViewSource
	tick       time.Duration
	now        func() time.Time
	clients    map[*Client]bool
	broadcast  chan pollMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	pollID string
	send   chan models.WSMessage
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// close closes the send channel once. Called by the hub loop only.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// New creates a new Hub. Subscribed clients get a status update every tick.
func New(log logger.Logger, views ViewSource, tick time.Duration) *Hub {
	if tick <= 0 {
		tick = time.Second
	}
	return &Hub{
		log:        log,
		views:      views,
		tick:       tick,
		now:        time.Now,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan pollMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetClock overrides the wall clock used for status updates. Used by tests.
func (h *Hub) SetClock(now func() time.Time) {
	h.now = now
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start() {
	go h.run()
}

// run handles client registration/unregistration and message broadcasting
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client connected", "client_id", client.id, "poll_id", client.pollID, "total_clients", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client disconnected", "client_id", client.id, "poll_id", client.pollID, "total_clients", total)

		case m := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				if client.pollID != m.pollID {
					continue
				}
				select {
				case client.send <- m.msg:
				default:
					// Client's send channel is full, unregister
					go func(c *Client) {
						h.unregister <- c
					}(client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// BroadcastPoll implements services.Broadcaster
func (h *Hub) BroadcastPoll(pollID, msgType string, payload interface{}) {
	h.broadcast <- pollMessage{
		pollID: pollID,
		msg:    models.WSMessage{Type: msgType, Payload: payload},
	}
}

// Subscribers returns the number of clients watching pollID
func (h *Hub) Subscribers(pollID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for c := range h.clients {
		if c.pollID == pollID {
			n++
		}
	}
	return n
}

// deliver queues msg for one client without blocking. Messages to a client
// that has already been unregistered are dropped.
func (h *Hub) deliver(c *Client, msg models.WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// watch pushes the poll's status to c until the poll ends or c disconnects.
func (h *Hub) watch(ctx context.Context, c *Client, view *voteflow.View) {
	err := pollstatus.Watch(ctx, view.Tracker(), h.tick, h.now, func(snap pollstatus.Snapshot) {
		h.deliver(c, models.WSMessage{
			Type:    services.MsgPollStatus,
			Payload: services.StatusUpdate{PollID: c.pollID, Snapshot: snap},
		})
	})
	if err == nil {
		h.log.Debug("Poll ended, status updates stopped", "poll_id", c.pollID)
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.unregister <- c
		c.conn.Close()
		c.hub.views.ReleaseView(c.pollID)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		// Pages never send anything meaningful; log and ignore
		var msg models.WSMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.hub.log.Debug("Received message", "type", msg.Type)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			msgBytes, _ := json.Marshal(message)
			w.Write(msgBytes)

			if err := w.Close(); err != nil {
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

// ServeWs subscribes a client to the poll named by the "poll" query parameter.
// The poll's view is held open for as long as the connection lives.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	pollID := r.URL.Query().Get("poll")
	if pollID == "" {
		http.Error(w, "poll is required", http.StatusBadRequest)
		return
	}

	view, err := h.views.AcquireView(r.Context(), pollID)
	if err != nil {
		h.log.Warn("WebSocket subscription refused", "poll_id", pollID, "error", err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		h.views.ReleaseView(pollID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		pollID: pollID,
		send:   make(chan models.WSMessage, 256),
		cancel: cancel,
	}
	h.register <- client

	h.deliver(client, models.WSMessage{
		Type: services.MsgCandidates,
		Payload: services.CandidatesUpdate{
			PollID:     pollID,
			Candidates: view.Candidates(),
			TotalVotes: view.Poll().TotalVotes,
		},
	})

	go h.watch(ctx, client, view)
	go client.writePump()
	go client.readPump()
}
