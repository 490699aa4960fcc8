package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teamloop/teamloop/prometheus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Client is one authenticated websocket connection
type Client struct {
	id       string
	userID   uint
	tenantID uint
	conn     *websocket.Conn
	send     chan Event
}

// NewClient wraps an upgraded connection. The caller registers it with the
// hub and starts the pumps.
func NewClient(conn *websocket.Conn, userID, tenantID uint) *Client {
	return &Client{
		id:       uuid.New().String(),
		userID:   userID,
		tenantID: tenantID,
		conn:     conn,
		send:     make(chan Event, sendBuffer),
	}
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user behind this connection
func (c *Client) UserID() uint { return c.userID }

// WritePump serializes outgoing events onto the socket and keeps the
// connection alive with pings. It exits when the send channel closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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

// ReadPump drains the socket until it closes. Clients have no inbound event
// surface, so frames are discarded; the pump exists to notice disconnects
// and answer pings. Blocks until the connection drops.
func (c *Client) ReadPump(h *Hub) {
	defer h.Unregister(c.id)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Bridge propagates broadcasts to other instances of the gateway
type Bridge interface {
	Publish(tenantID uint, room string, ev Event)
}

// Hub is the connection manager: it owns the mapping from connection id to
// client and room subscriptions, with lifecycle tied to register/unregister.
type Hub struct {
	log    *zap.Logger
	bridge Bridge

	mu      sync.RWMutex
	clients map[string]*Client            // connection id -> client
	byUser  map[uint]map[string]*Client   // user id -> connection id -> client
	rooms   map[string]map[string]*Client // room -> connection id -> client
	joined  map[string]map[string]bool    // connection id -> room set
}

// NewHub creates an empty hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
		byUser:  make(map[uint]map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]bool),
	}
}

// SetBridge attaches the cross-instance event bridge
func (h *Hub) SetBridge(b Bridge) {
	h.mu.Lock()
	h.bridge = b
	h.mu.Unlock()
}

// Register adds a client to the hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
	if h.byUser[c.userID] == nil {
		h.byUser[c.userID] = make(map[string]*Client)
	}
	h.byUser[c.userID][c.id] = c
	h.joined[c.id] = make(map[string]bool)

	prometheus.ActiveConnectionsGauge.Inc()
	h.log.Debug("websocket client registered",
		zap.String("conn_id", c.id),
		zap.Uint("user_id", c.userID),
		zap.Uint("tenant_id", c.tenantID))
}

// Unregister removes a client, leaves all its rooms and closes its send
// channel, which ends the write pump.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}

	for room := range h.joined[connID] {
		h.leaveLocked(connID, room)
	}
	delete(h.joined, connID)
	delete(h.clients, connID)
	if conns := h.byUser[c.userID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)

	prometheus.ActiveConnectionsGauge.Dec()
	h.log.Debug("websocket client unregistered", zap.String("conn_id", connID))
}

// Join subscribes a connection to a room
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(connID, room)
}

// Leave unsubscribes a connection from a room
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, room)
}

// JoinUser subscribes every live connection of a user to a room. Used when
// membership changes while the user is connected.
func (h *Hub) JoinUser(userID uint, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID := range h.byUser[userID] {
		h.joinLocked(connID, room)
	}
}

// LeaveUser removes every live connection of a user from a room
func (h *Hub) LeaveUser(userID uint, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID := range h.byUser[userID] {
		h.leaveLocked(connID, room)
	}
}

func (h *Hub) joinLocked(connID, room string) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][connID] = c
	h.joined[connID][room] = true
}

func (h *Hub) leaveLocked(connID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
	}
}

// Broadcast delivers an event to every socket in the room, sender included,
// and forwards it through the bridge so other instances deliver it too.
func (h *Hub) Broadcast(tenantID uint, room string, ev Event) {
	h.deliver(room, ev)
	prometheus.RecordEvent(ev.Event)

	h.mu.RLock()
	bridge := h.bridge
	h.mu.RUnlock()
	if bridge != nil {
		bridge.Publish(tenantID, room, ev)
	}
}

// deliver fans out to local room members only. Slow consumers never block
// the broadcast: the frame is dropped and counted instead.
func (h *Hub) deliver(room string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[room] {
		select {
		case c.send <- ev:
		default:
			prometheus.DroppedFramesCounter.Inc()
			h.log.Warn("dropping frame for slow websocket client",
				zap.String("conn_id", c.id),
				zap.String("event", ev.Event))
		}
	}
}
