package ws

import (
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"go-chat-realtime/internal/metrics"
	"go-chat-realtime/internal/models"
)

// Hub maintains active sessions, the rooms they joined and the sessions of
// each user. A user's sessions form its personal room; conversation rooms
// are keyed by conversation id. The two live in separate maps so ids never
// collide.
type Hub struct {
	mu sync.RWMutex

	// Map: room -> set of clients
	rooms map[string]map[*Client]bool

	// Map: userId -> set of clients
	users map[string]map[*Client]bool

	// Map: connId -> client
	conns map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]bool),
		users: make(map[string]map[*Client]bool),
		conns: make(map[string]*Client),
	}
}

// Register adds client to the hub and its user's personal room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[client.user.ID] == nil {
		h.users[client.user.ID] = make(map[*Client]bool)
	}
	h.users[client.user.ID][client] = true
	h.conns[client.connID] = client

	slog.Debug("[HUB] Client registered", "user", client.user.ID, "conn", client.connID,
		"sessions", len(h.users[client.user.ID]))
}

// Unregister removes client from every room and closes its send channel.
// It returns the conversation rooms the client was in and whether it was
// the user's last session. Unregistering twice is a no-op that reports
// last=false.
func (h *Hub) Unregister(client *Client) (rooms []string, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[client.connID]; !ok {
		return nil, false
	}
	rooms = h.removeLocked(client)

	_, stillOnline := h.users[client.user.ID]
	slog.Debug("[HUB] Client unregistered", "user", client.user.ID, "conn", client.connID, "rooms", len(rooms))
	return rooms, !stillOnline
}

// removeLocked detaches client everywhere. Caller holds h.mu.
func (h *Hub) removeLocked(client *Client) []string {
	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
		if clients, ok := h.rooms[room]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.rooms = make(map[string]bool)

	if sessions, ok := h.users[client.user.ID]; ok {
		delete(sessions, client)
		if len(sessions) == 0 {
			delete(h.users, client.user.ID)
		}
	}
	delete(h.conns, client.connID)
	client.closeSend()
	return rooms
}

// Join adds client to room.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(client, room)
}

func (h *Hub) joinLocked(client *Client, room string) {
	if _, ok := h.conns[client.connID]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.rooms[room] = true
}

func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// JoinConn adds the session connID to room, if it is still connected.
func (h *Hub) JoinConn(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.conns[connID]; ok {
		h.joinLocked(client, room)
	}
}

// JoinUser adds every live session of userID to room.
func (h *Hub) JoinUser(userID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.users[userID] {
		h.joinLocked(client, room)
	}
}

// RemoveRoom detaches every client from room.
func (h *Hub) RemoveRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[room] {
		delete(client.rooms, room)
	}
	delete(h.rooms, room)
}

// ToRoom sends an event to every client in room.
func (h *Hub) ToRoom(room, event string, data interface{}) {
	h.deliver("room", event, room, data, func() map[*Client]bool { return h.rooms[room] }, "")
}

// ToRoomExcept sends to every client in room but the session exceptConnID.
func (h *Hub) ToRoomExcept(room, event string, data interface{}, exceptConnID string) {
	h.deliver("room", event, room, data, func() map[*Client]bool { return h.rooms[room] }, exceptConnID)
}

// ToUser sends to every live session of userID.
func (h *Hub) ToUser(userID, event string, data interface{}) {
	h.deliver("user", event, userID, data, func() map[*Client]bool { return h.users[userID] }, "")
}

// Broadcast sends to every connected session except exceptConnID.
func (h *Hub) Broadcast(event string, data interface{}, exceptConnID string) {
	h.deliver("broadcast", event, "", data, func() map[*Client]bool {
		all := make(map[*Client]bool, len(h.conns))
		for _, c := range h.conns {
			all[c] = true
		}
		return all
	}, exceptConnID)
}

func (h *Hub) deliver(kind, event, room string, data interface{}, targets func() map[*Client]bool, exceptConnID string) {
	payload, err := json.Marshal(models.NewEvent(event, room, data))
	if err != nil {
		slog.Error("[HUB] Failed to marshal event", "event", event, "error", err)
		return
	}

	var slow []*Client
	sent := 0

	h.mu.RLock()
	for client := range targets() {
		if client.closed || client.connID == exceptConnID {
			continue
		}
		select {
		case client.send <- payload:
			sent++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	metrics.FanoutDeliveries.WithLabelValues(kind, "sent").Add(float64(sent))
	if len(slow) == 0 {
		return
	}

	// Client buffer full, disconnect
	metrics.FanoutDeliveries.WithLabelValues(kind, "dropped").Add(float64(len(slow)))
	h.mu.Lock()
	for _, client := range slow {
		if _, ok := h.conns[client.connID]; ok {
			slog.Warn("[HUB] Client buffer full, disconnecting", "user", client.user.ID, "conn", client.connID)
			client.closeSend()
		}
	}
	h.mu.Unlock()
}

// Sessions returns the connection ids of userID's live sessions.
func (h *Hub) Sessions(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.users[userID]))
	for client := range h.users[userID] {
		out = append(out, client.connID)
	}
	return out
}

// RoomUsers returns the ids of users with a session in room.
func (h *Hub) RoomUsers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	users := []string{}
	for client := range h.rooms[room] {
		if !seen[client.user.ID] {
			seen[client.user.ID] = true
			users = append(users, client.user.ID)
		}
	}
	return users
}

// ClientCount returns the number of registered sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
