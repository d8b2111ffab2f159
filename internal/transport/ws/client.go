package ws

import "sync"

// Client wraps a single WebSocket connection and satisfies
// transport.Connection. Unlike the original single-document editor, a
// Client here may belong to at most one room at a time; Join replaces
// whatever room it previously belonged to.
type Client struct {
	id     string
	userID string
	conn   Conn
	hub    *Hub

	mu   sync.Mutex
	room string
}

// NewClient creates a client wrapper bound to conn that uses hub for
// room membership and broadcast delivery. It does not register the
// client with hub; callers do that with Hub.Register.
func NewClient(id, userID string, conn Conn, hub *Hub) *Client {
	return &Client{id: id, userID: userID, conn: conn, hub: hub}
}

// ID returns the connection's identifier.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user behind this connection.
func (c *Client) UserID() string { return c.userID }

// Room returns the room this client currently belongs to, or "" if none.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.room
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.room = room
}

// Join moves the client's broadcast membership to room, leaving
// whatever room it belonged to before.
func (c *Client) Join(room string) error {
	c.hub.Subscribe(c, room)

	return nil
}

// Emit writes event/payload directly to this connection.
func (c *Client) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteJSON(OutEnvelope{Type: event, Payload: payload})
}

// Receive reads the next envelope off the wire. The payload is left as
// raw JSON; callers decode it once they know, from Type, what shape to
// expect.
func (c *Client) Receive() (Envelope, error) {
	var env Envelope

	if err := c.conn.ReadJSON(&env); err != nil {
		return Envelope{}, err
	}

	return env, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
