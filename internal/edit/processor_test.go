package edit_test

import (
	"context"
	"sync"
	"testing"

	"github.com/serroba/diffsyncd/internal/acl"
	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/edit"
	"github.com/serroba/diffsyncd/internal/room"
	"github.com/serroba/diffsyncd/internal/roomstore"
	"github.com/serroba/diffsyncd/internal/save"
	"github.com/serroba/diffsyncd/internal/transport"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	userID string

	mu      sync.Mutex
	emitted []fakeEmit
}

type fakeEmit struct {
	event   string
	payload any
}

func (c *fakeConn) ID() string        { return c.id }
func (c *fakeConn) UserID() string    { return c.userID }
func (c *fakeConn) Join(string) error { return nil }

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.emitted = append(c.emitted, fakeEmit{event: event, payload: payload})

	return nil
}

func (c *fakeConn) events() []fakeEmit {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]fakeEmit(nil), c.emitted...)
}

type fakeTransport struct {
	mu   sync.Mutex
	sent map[string][]fakeEmit
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][]fakeEmit)}
}

func (t *fakeTransport) To(room string) transport.RoomBroadcaster {
	return fakeBroadcaster{t: t, room: room}
}

func (t *fakeTransport) broadcasts(room string) []fakeEmit {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]fakeEmit(nil), t.sent[room]...)
}

type fakeBroadcaster struct {
	t    *fakeTransport
	room string
}

func (b fakeBroadcaster) Emit(event string, payload any) error {
	b.t.mu.Lock()
	defer b.t.mu.Unlock()

	b.t.sent[b.room] = append(b.t.sent[b.room], fakeEmit{event: event, payload: payload})

	return nil
}

func newTestProcessor(t *testing.T, seed map[string]any) (*edit.Processor, *roomstore.Store, *fakeTransport, *adapter.Memory) {
	t.Helper()

	a := adapter.NewMemory(nil)
	require.NoError(t, a.Seed(context.Background(), "r", seed))

	rooms := roomstore.New(a)
	saver := save.New(a, rooms, nil)
	tr := newFakeTransport()
	engine := diffsync.New(diffsync.Options{})

	return edit.New(rooms, a, saver, tr, engine, nil), rooms, tr, a
}

func joinRoom(t *testing.T, rooms *roomstore.Store, connID string) *room.RoomState {
	t.Helper()

	state, err := rooms.GetData(context.Background(), "r", "u1")
	require.NoError(t, err)

	state.Lock()
	state.AddClient(connID, room.NewClientState(state.ServerCopy))
	state.AddSocket(connID)
	state.Unlock()

	return state
}

func TestReceiveEdit_SingleEditApplied(t *testing.T) {
	t.Parallel()

	proc, rooms, tr, _ := newTestProcessor(t, map[string]any{"text": "hello"})
	state := joinRoom(t, rooms, "conn1")

	engine := diffsync.New(diffsync.Options{})
	diff := engine.Diff(map[string]any{"text": "hello"}, map[string]any{"text": "hello world"})

	conn := &fakeConn{id: "conn1", userID: "u1"}
	msg := room.EditMessage{
		Room:          "r",
		ServerVersion: 0,
		Edits: []room.Edit{
			{ServerVersion: 0, LocalVersion: 0, Diff: diff},
		},
	}

	var got room.Reply

	err := proc.ReceiveEdit(context.Background(), conn, msg, func(r room.Reply) error {
		got = r

		return nil
	})
	require.NoError(t, err)

	state.Lock()
	require.Equal(t, map[string]any{"text": "hello world"}, state.ServerCopy)

	clientDoc := state.Client("conn1")
	require.Equal(t, map[string]any{"text": "hello world"}, clientDoc.Shadow.Doc)
	require.Equal(t, 1, clientDoc.Shadow.LocalVersion)
	require.Equal(t, 0, clientDoc.Shadow.ServerVersion)
	state.Unlock()

	require.Equal(t, 1, got.LocalVersion)
	require.Equal(t, 0, got.ServerVersion)
	require.Empty(t, got.Edits)

	broadcasts := tr.broadcasts("r")
	require.Len(t, broadcasts, 1)
	require.Equal(t, edit.RemoteUpdateEvent, broadcasts[0].event)
	require.Equal(t, "conn1", broadcasts[0].payload)
}

func TestReceiveEdit_StaleEditRejected(t *testing.T) {
	t.Parallel()

	proc, rooms, tr, _ := newTestProcessor(t, map[string]any{"text": "hello"})
	state := joinRoom(t, rooms, "conn1")

	engine := diffsync.New(diffsync.Options{})
	diff := engine.Diff(map[string]any{"text": "hello"}, map[string]any{"text": "hello world"})

	conn := &fakeConn{id: "conn1", userID: "u1"}
	msg := room.EditMessage{
		Room:          "r",
		ServerVersion: 0,
		Edits: []room.Edit{
			{ServerVersion: 0, LocalVersion: 0, Diff: diff},
		},
	}

	require.NoError(t, proc.ReceiveEdit(context.Background(), conn, msg, func(room.Reply) error { return nil }))

	// The same (now stale) edit arrives again.
	var got room.Reply

	err := proc.ReceiveEdit(context.Background(), conn, msg, func(r room.Reply) error {
		got = r

		return nil
	})
	require.NoError(t, err)

	state.Lock()
	require.Equal(t, map[string]any{"text": "hello world"}, state.ServerCopy, "stale edit must not change server copy again")
	state.Unlock()

	require.Equal(t, 1, got.LocalVersion)
	require.Equal(t, 0, got.ServerVersion)

	// Broadcast is gated on the inbound message carrying edits at all,
	// not on whether any of them were actually applied, so the stale
	// resend still triggers a second broadcast.
	require.Len(t, tr.broadcasts("r"), 2)
}

func TestReceiveEdit_UnknownClientAsksToReconnect(t *testing.T) {
	t.Parallel()

	proc, rooms, _, _ := newTestProcessor(t, map[string]any{"text": "hello"})
	joinRoom(t, rooms, "conn1")

	conn := &fakeConn{id: "conn-unknown", userID: "u1"}
	msg := room.EditMessage{Room: "r", ServerVersion: 0}

	called := false

	err := proc.ReceiveEdit(context.Background(), conn, msg, func(room.Reply) error {
		called = true

		return nil
	})
	require.NoError(t, err)
	require.False(t, called, "reply must not be invoked for an unknown client")

	events := conn.events()
	require.Len(t, events, 1)
	require.Equal(t, edit.ReconnectEvent, events[0].event)
}

func TestReceiveEdit_DeniedByAdapterIsSilentlyDropped(t *testing.T) {
	t.Parallel()

	permStore := acl.NewMemoryStore() // no grants: every check is denied
	a := adapter.NewMemory(permStore)
	require.NoError(t, a.Seed(context.Background(), "r", map[string]any{"text": "hello"}))

	rooms := roomstore.New(a)
	saver := save.New(a, rooms, nil)
	tr := newFakeTransport()
	engine := diffsync.New(diffsync.Options{})
	proc := edit.New(rooms, a, saver, tr, engine, nil)

	joinRoom(t, rooms, "conn1")

	conn := &fakeConn{id: "conn1", userID: "u1"}
	msg := room.EditMessage{Room: "r", ServerVersion: 0}

	called := false

	err := proc.ReceiveEdit(context.Background(), conn, msg, func(room.Reply) error {
		called = true

		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
	require.Empty(t, conn.events())
	require.Empty(t, tr.broadcasts("r"))
}

func TestReceiveEdit_CrossClientPropagation(t *testing.T) {
	t.Parallel()

	proc, rooms, _, _ := newTestProcessor(t, map[string]any{"text": "hello"})
	state := joinRoom(t, rooms, "connA")
	joinRoom(t, rooms, "connB")

	engine := diffsync.New(diffsync.Options{})
	diff := engine.Diff(map[string]any{"text": "hello"}, map[string]any{"text": "hello world"})

	connA := &fakeConn{id: "connA", userID: "u1"}
	editMsg := room.EditMessage{
		Room:          "r",
		ServerVersion: 0,
		Edits: []room.Edit{
			{ServerVersion: 0, LocalVersion: 0, Diff: diff},
		},
	}

	require.NoError(t, proc.ReceiveEdit(context.Background(), connA, editMsg, func(room.Reply) error { return nil }))

	state.Lock()
	require.Equal(t, map[string]any{"text": "hello world"}, state.ServerCopy)
	state.Unlock()

	// connB hasn't submitted any edits of its own; its next sync must
	// still surface A's change as an outstanding server diff.
	connB := &fakeConn{id: "connB", userID: "u2"}
	syncMsg := room.EditMessage{Room: "r", ServerVersion: 0}

	var got room.Reply

	err := proc.ReceiveEdit(context.Background(), connB, syncMsg, func(r room.Reply) error {
		got = r

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, got.ServerVersion)
	require.Len(t, got.Edits, 1)
	require.False(t, got.Edits[0].Diff.IsEmpty())

	state.Lock()
	clientB := state.Client("connB")
	require.Equal(t, 1, clientB.Shadow.ServerVersion)
	require.Len(t, clientB.Edits, 1)
	state.Unlock()

	// connB's next message reports the server version from the reply
	// above, which must drain its queued edits.
	ackMsg := room.EditMessage{Room: "r", ServerVersion: got.Edits[0].ServerVersion + 1}

	require.NoError(t, proc.ReceiveEdit(context.Background(), connB, ackMsg, func(room.Reply) error { return nil }))

	state.Lock()
	require.Empty(t, state.Client("connB").Edits)
	state.Unlock()
}

func TestReceiveEdit_EmptyDiffStillReplies(t *testing.T) {
	t.Parallel()

	proc, rooms, tr, _ := newTestProcessor(t, map[string]any{"text": "hello"})
	joinRoom(t, rooms, "conn1")

	conn := &fakeConn{id: "conn1", userID: "u1"}
	msg := room.EditMessage{Room: "r", ServerVersion: 0}

	var got room.Reply

	err := proc.ReceiveEdit(context.Background(), conn, msg, func(r room.Reply) error {
		got = r

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, got.LocalVersion)
	require.Equal(t, 0, got.ServerVersion)
	require.Empty(t, tr.broadcasts("r"), "no edits means no broadcast")
}
