// Package transport defines the connection/room-broadcast contract the
// differential sync core depends on. It is deliberately thin: the core
// only ever needs to identify a connection, send it a message, join it
// to a room, and broadcast to a room's membership.
package transport

// Connection is a single client connection: an identity, a room
// membership, and a way to push events to it directly.
type Connection interface {
	// ID uniquely identifies this connection.
	ID() string
	// UserID identifies the authenticated user behind this connection.
	UserID() string
	// Join marks this connection as a member of room, for broadcast
	// purposes.
	Join(room string) error
	// Emit sends an event directly to this connection.
	Emit(event string, payload any) error
}

// RoomBroadcaster is the handle returned by Transport.To(room); its
// Emit fans out to every connection currently joined to that room.
type RoomBroadcaster interface {
	Emit(event string, payload any) error
}

// Transport is the broadcast half of the contract: To(room).Emit(event,
// payload) reaches every connection joined to that room.
type Transport interface {
	To(room string) RoomBroadcaster
}
