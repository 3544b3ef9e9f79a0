package service

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ReilBleem13/HelloChat/internal/metrics"
)

type roomSet map[string]struct{}

// Hub tracks connected clients and their room memberships. Every client is
// placed in a personal room named after its user id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]roomSet
	joined  map[string]roomSet

	presence *Presence
	log      *slog.Logger
}

func NewHub(presence *Presence, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]roomSet),
		joined:   make(map[string]roomSet),
		presence: presence,
		log:      log,
	}
}

func (h *Hub) Presence() *Presence {
	return h.presence
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.joinLocked(c.id, c.userID)
	h.mu.Unlock()

	first := h.presence.OnConnect(c.userID, c.id)
	metrics.GatewayConnections.Inc()
	h.log.Info("User connected", "user_id", c.userID, "conn_id", c.id, "first", first)

	h.EmitToAll(EventOnlineUsers, h.presence.OnlineUsers())
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for room := range h.joined[c.id] {
		h.leaveLocked(c.id, room)
	}
	delete(h.joined, c.id)
	h.mu.Unlock()

	c.Close()
	_, offline := h.presence.OnDisconnect(c.id)
	metrics.GatewayConnections.Dec()
	h.log.Info("User disconnected", "user_id", c.userID, "conn_id", c.id, "offline", offline)

	h.EmitToAll(EventOnlineUsers, h.presence.OnlineUsers())
}

func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return
	}
	h.joinLocked(connID, room)
}

func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, room)
}

func (h *Hub) joinLocked(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(roomSet)
		h.rooms[room] = members
	}
	members[connID] = struct{}{}

	rooms, ok := h.joined[connID]
	if !ok {
		rooms = make(roomSet)
		h.joined[connID] = rooms
	}
	rooms[room] = struct{}{}
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

func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.rooms[room][connID]
	return ok
}

func (h *Hub) EmitToRoom(room, event string, payload any) {
	h.EmitToRoomExcept(room, "", event, payload)
}

// EmitToRoomExcept sends to every member of room other than exceptConn.
func (h *Hub) EmitToRoomExcept(room, exceptConn, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for connID := range h.rooms[room] {
		if connID == exceptConn {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, frame)
}

func (h *Hub) EmitToConnection(connID, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	c, found := h.clients[connID]
	h.mu.RUnlock()
	if !found {
		return
	}
	h.deliver([]*Client{c}, frame)
}

func (h *Hub) EmitToAll(event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, frame)
}

// Stop closes every client; their pumps unregister them.
func (h *Hub) Stop() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Close()
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	frame, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		h.log.Error("Failed to marshal event", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

func (h *Hub) deliver(targets []*Client, frame []byte) {
	for _, c := range targets {
		if c.closed() {
			continue
		}
		if !c.enqueue(frame) {
			h.log.Warn("Send buffer full, disconnecting client", "conn_id", c.id, "user_id", c.userID)
			c.Close()
		}
	}
}
