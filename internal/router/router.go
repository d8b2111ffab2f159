// Package router wires a transport connection's inbound events to the
// room store and edit processor: join a room, then keep syncing.
package router

import (
	"context"

	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/edit"
	"github.com/serroba/diffsyncd/internal/room"
	"github.com/serroba/diffsyncd/internal/roomstore"
	"github.com/serroba/diffsyncd/internal/transport"
)

// Commands names the wire event a connection subscribes to or emits.
// It is the one place client and server implementations both need to
// agree on.
var Commands = struct {
	Join                 string
	SyncWithServer       string
	Error                string
	RemoteUpdateIncoming string
}{
	Join:                 "join",
	SyncWithServer:       "syncWithServer",
	Error:                edit.ReconnectEvent,
	RemoteUpdateIncoming: edit.RemoteUpdateEvent,
}

// Presence tracks room membership across processes, complementing the
// in-process membership RoomState.Sockets keeps for local broadcast. It
// is optional: a Router with a nil Presence works fine in a
// single-process deployment.
type Presence interface {
	Join(ctx context.Context, roomID, connID string) error
	Leave(ctx context.Context, roomID, connID string) error
}

// PresenceLister is implemented by a Presence tracker that can list
// which connections currently hold a room, used by the room-membership
// debug endpoint. Not every Presence implementation needs to support it.
type PresenceLister interface {
	Members(ctx context.Context, roomID string) ([]string, error)
}

// PresenceRefresher is implemented by a Presence tracker whose entries
// expire on a TTL and need periodic renewal from whichever process
// still holds live connections for a room.
type PresenceRefresher interface {
	Refresh(ctx context.Context, roomID string) error
}

// Router dispatches a connection's join/syncWithServer events to
// RoomStore and Editor. It holds no per-connection state of its own;
// everything it touches lives in room.RoomState or the connection
// itself.
type Router struct {
	Rooms    *roomstore.Store
	Editor   *edit.Processor
	Diff     *diffsync.Engine
	Presence Presence
}

// New creates a Router with no cross-process presence tracking. Set
// Presence directly on the returned Router to enable it.
func New(rooms *roomstore.Store, editor *edit.Processor, diff *diffsync.Engine) *Router {
	return &Router{Rooms: rooms, Editor: editor, Diff: diff}
}

// Join loads roomID (creating it on first access), registers conn as a
// new client of the room seeded with a deep copy of the current server
// copy, subscribes conn to the room for broadcast, and returns the
// initial document the caller should hand to the client.
func (r *Router) Join(ctx context.Context, conn transport.Connection, roomID string) (any, error) {
	state, err := r.Rooms.GetData(ctx, roomID, conn.UserID())
	if err != nil {
		return nil, err
	}

	state.Lock()
	initial := r.Diff.DeepCopy(state.ServerCopy)
	state.AddClient(conn.ID(), room.NewClientState(state.ServerCopy))
	state.AddSocket(conn.ID())
	state.Unlock()

	if err := conn.Join(roomID); err != nil {
		return nil, err
	}

	if r.Presence != nil {
		if err := r.Presence.Join(ctx, roomID, conn.ID()); err != nil {
			return nil, err
		}
	}

	return initial, nil
}

// Leave drops conn's client and broadcast-membership state for roomID,
// e.g. on disconnect. It is a no-op for a room that was never loaded.
func (r *Router) Leave(ctx context.Context, roomID string, conn transport.Connection) {
	if r.Presence != nil {
		// Best-effort: a stale presence entry expires via its own TTL.
		_ = r.Presence.Leave(ctx, roomID, conn.ID())
	}

	state := r.Rooms.Peek(roomID)
	if state == nil {
		return
	}

	state.Lock()
	state.RemoveClient(conn.ID())
	state.RemoveSocket(conn.ID())
	state.Unlock()
}

// SyncWithServer delegates an inbound edit message to the edit
// processor, replying through reply.
func (r *Router) SyncWithServer(ctx context.Context, conn transport.Connection, msg room.EditMessage, reply edit.ReplyFunc) error {
	return r.Editor.ReceiveEdit(ctx, conn, msg, reply)
}
