package ws

import (
	"log/slog"
	"sync"

	"github.com/serroba/diffsyncd/internal/transport"
)

// Hub manages connected WebSocket clients and their room memberships,
// and is the concrete transport.Transport used by cmd/diffsyncd.
type Hub struct {
	logger *slog.Logger

	mu sync.RWMutex

	// clients maps connection ID to client.
	clients map[string]*Client

	// rooms maps room ID to the set of member connection IDs.
	rooms map[string]map[string]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		logger:  logger,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register adds a client to the hub, before it has joined any room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID()] = client
}

// Unregister removes a client and drops it from whatever room it
// belonged to.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room := client.Room(); room != "" {
		h.removeFromRoom(room, client.ID())
	}

	delete(h.clients, client.ID())
}

// Subscribe moves client into room, leaving whatever room it was
// previously in.
func (h *Hub) Subscribe(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old := client.Room(); old != "" && old != room {
		h.removeFromRoom(old, client.ID())
	}

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}

	h.rooms[room][client.ID()] = struct{}{}
	client.setRoom(room)
}

func (h *Hub) removeFromRoom(room, connID string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)

		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends msg to every client joined to room except excludeID.
// Sends run on their own goroutine so one slow client never stalls the
// broadcast of the rest.
func (h *Hub) Broadcast(room string, event string, payload any, excludeID string) {
	h.mu.RLock()
	members := h.rooms[room]

	ids := make([]string, 0, len(members))
	for id := range members {
		if id != excludeID {
			ids = append(ids, id)
		}
	}

	clients := make([]*Client, 0, len(ids))

	for _, id := range ids {
		if c, ok := h.clients[id]; ok {
			clients = append(clients, c)
		}
	}

	h.mu.RUnlock()

	for _, c := range clients {
		go func(c *Client) {
			if err := c.Emit(event, payload); err != nil {
				h.logger.Warn("emit failed", "connection", c.ID(), "event", event, "error", err)
			}
		}(c)
	}
}

// MemberCount returns how many clients are currently joined to room.
func (h *Hub) MemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// Rooms returns the IDs of rooms this hub currently has locally
// connected clients for, used to periodically refresh cross-process
// presence entries for the rooms this process is actively serving.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		rooms = append(rooms, room)
	}

	return rooms
}

// To returns a broadcaster scoped to room, satisfying transport.Transport.
func (h *Hub) To(room string) transport.RoomBroadcaster {
	return roomBroadcaster{hub: h, room: room}
}

type roomBroadcaster struct {
	hub  *Hub
	room string
}

func (b roomBroadcaster) Emit(event string, payload any) error {
	b.hub.Broadcast(b.room, event, payload, "")

	return nil
}

var _ transport.Transport = (*Hub)(nil)
var _ transport.Connection = (*Client)(nil)
