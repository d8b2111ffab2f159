// Package room holds the pure, I/O-free per-room and per-client bookkeeping
// for differential synchronization: shadow/backup document copies and the
// pending outbound edit queue.
package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/serroba/diffsyncd/internal/diffsync"
)

// Edit is one step of change exchanged between server and client: a
// version pair plus the diff that carries them from one shadow state to
// the next.
type Edit struct {
	ServerVersion int            `json:"serverVersion"`
	LocalVersion  int            `json:"localVersion"`
	Diff          diffsync.Delta `json:"diff"`
}

// Shadow is the server's model of what a client has last acknowledged.
type Shadow struct {
	Doc           any
	ServerVersion int
	LocalVersion  int
}

// Backup is a one-step-back copy of Shadow, taken immediately before
// applying an inbound client diff, reserved for future recovery.
type Backup struct {
	Doc           any
	ServerVersion int
}

// ClientState is the shadow/backup/edit-queue bookkeeping for a single
// (room, client) pair.
type ClientState struct {
	Shadow Shadow
	Backup Backup
	Edits  []Edit
}

// NewClientState creates a ClientState seeded from a deep copy of doc,
// as required on join: shadow and backup both start as independent
// copies of the room's current server copy.
func NewClientState(doc any) *ClientState {
	return &ClientState{
		Shadow: Shadow{Doc: diffsync.DeepCopy(doc)},
		Backup: Backup{Doc: diffsync.DeepCopy(doc)},
		Edits:  nil,
	}
}

// ErrInvariant is returned by CheckInvariants when a ClientState violates
// one of its monotonicity or ordering invariants.
var ErrInvariant = errors.New("client state invariant violated")

// CheckInvariants asserts the monotonicity and ordering invariants a
// well-formed ClientState must hold. It is a test/debug helper, not used
// on any hot path.
func (c *ClientState) CheckInvariants() error {
	if c.Shadow.ServerVersion < 0 || c.Shadow.LocalVersion < 0 {
		return fmt.Errorf("%w: versions must be non-negative", ErrInvariant)
	}

	prevServer, prevLocal := -1, -1

	for i, e := range c.Edits {
		if e.ServerVersion > c.Shadow.ServerVersion {
			return fmt.Errorf("%w: edit %d has serverVersion beyond shadow.serverVersion", ErrInvariant, i)
		}

		if e.ServerVersion < prevServer || (e.ServerVersion == prevServer && e.LocalVersion <= prevLocal) {
			return fmt.Errorf("%w: edit %d is out of (serverVersion, localVersion) order", ErrInvariant, i)
		}

		prevServer, prevLocal = e.ServerVersion, e.LocalVersion
	}

	return nil
}

// RoomState is the authoritative per-room state: one canonical document
// shared by every client sync-state for the room.
type RoomState struct {
	// mu serializes all mutation of a room's shadow/server-copy state: no
	// suspension point may occur between the read and write of shadow.*
	// fields for a single edit.
	mu sync.Mutex

	ServerCopy any
	Clients    map[string]*ClientState
	// Sockets is the set of connection IDs currently joined, used only
	// for broadcast membership.
	Sockets map[string]struct{}
}

// New creates a RoomState seeded with doc as the initial server copy.
func New(doc any) *RoomState {
	return &RoomState{
		ServerCopy: doc,
		Clients:    make(map[string]*ClientState),
		Sockets:    make(map[string]struct{}),
	}
}

// Lock and Unlock expose the room's mutex directly so callers (the edit
// processor, the session router) can hold it across a multi-step
// critical section.
func (r *RoomState) Lock()   { r.mu.Lock() }
func (r *RoomState) Unlock() { r.mu.Unlock() }

// AddClient registers a new ClientState under id. Caller must hold the
// room lock.
func (r *RoomState) AddClient(id string, cs *ClientState) {
	r.Clients[id] = cs
}

// RemoveClient tears down a client's sync state, e.g. on disconnect.
// Caller must hold the room lock. It is safe to call for an id that was
// never registered or already removed.
func (r *RoomState) RemoveClient(id string) {
	delete(r.Clients, id)
}

// Client returns the ClientState for id, or nil if untracked. Caller
// must hold the room lock.
func (r *RoomState) Client(id string) *ClientState {
	return r.Clients[id]
}

// AddSocket and RemoveSocket track broadcast membership. Caller must
// hold the room lock.
func (r *RoomState) AddSocket(id string)    { r.Sockets[id] = struct{}{} }
func (r *RoomState) RemoveSocket(id string) { delete(r.Sockets, id) }
