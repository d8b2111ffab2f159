package room_test

import (
	"testing"

	"github.com/serroba/diffsyncd/internal/room"
	"github.com/stretchr/testify/require"
)

func TestNewClientState_SeedsIndependentCopies(t *testing.T) {
	t.Parallel()

	seed := map[string]any{"text": "hello"}
	cs := room.NewClientState(seed)

	require.Equal(t, seed, cs.Shadow.Doc)
	require.Equal(t, seed, cs.Backup.Doc)

	seed["text"] = "mutated"
	require.Equal(t, "hello", cs.Shadow.Doc.(map[string]any)["text"])
	require.Equal(t, "hello", cs.Backup.Doc.(map[string]any)["text"])
}

func TestClientState_CheckInvariants_ValidState(t *testing.T) {
	t.Parallel()

	cs := room.NewClientState(map[string]any{})
	cs.Shadow.ServerVersion = 2
	cs.Edits = []room.Edit{
		{ServerVersion: 0, LocalVersion: 0},
		{ServerVersion: 0, LocalVersion: 1},
		{ServerVersion: 1, LocalVersion: 0},
	}

	require.NoError(t, cs.CheckInvariants())
}

func TestClientState_CheckInvariants_RejectsOutOfOrderEdits(t *testing.T) {
	t.Parallel()

	cs := room.NewClientState(map[string]any{})
	cs.Shadow.ServerVersion = 2
	cs.Edits = []room.Edit{
		{ServerVersion: 1, LocalVersion: 0},
		{ServerVersion: 0, LocalVersion: 0},
	}

	require.ErrorIs(t, cs.CheckInvariants(), room.ErrInvariant)
}

func TestClientState_CheckInvariants_RejectsEditBeyondShadow(t *testing.T) {
	t.Parallel()

	cs := room.NewClientState(map[string]any{})
	cs.Shadow.ServerVersion = 0
	cs.Edits = []room.Edit{{ServerVersion: 1, LocalVersion: 0}}

	require.ErrorIs(t, cs.CheckInvariants(), room.ErrInvariant)
}

func TestRoomState_AddRemoveClient(t *testing.T) {
	t.Parallel()

	r := room.New(map[string]any{"text": ""})
	r.Lock()
	defer r.Unlock()

	cs := room.NewClientState(r.ServerCopy)
	r.AddClient("c1", cs)

	require.Same(t, cs, r.Client("c1"))

	r.RemoveClient("c1")
	require.Nil(t, r.Client("c1"))

	// Removing an already-absent client must not panic (SessionRouter
	// may race with a disconnect purging stale state).
	r.RemoveClient("c1")
}

func TestRoomState_SocketMembership(t *testing.T) {
	t.Parallel()

	r := room.New(map[string]any{})
	r.Lock()
	defer r.Unlock()

	r.AddSocket("s1")
	require.Contains(t, r.Sockets, "s1")

	r.RemoveSocket("s1")
	require.NotContains(t, r.Sockets, "s1")
}
