package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serroba/diffsyncd/internal/acl"
	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/api"
	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/router"
	"github.com/serroba/diffsyncd/internal/roomstore"
)

// fakePresence is a router.Presence that also satisfies
// router.PresenceLister, for exercising the members endpoint without a
// real Redis backend.
type fakePresence struct {
	members []string
}

func (f fakePresence) Join(context.Context, string, string) error { return nil }

func (f fakePresence) Leave(context.Context, string, string) error { return nil }

func (f fakePresence) Members(context.Context, string) ([]string, error) {
	return f.members, nil
}

// newTestCollaborators builds a fresh set of in-memory collaborators for
// a Server under test, so each test gets isolated state.
func newTestCollaborators() (acl.Store, *adapter.Memory, *diffsync.Engine, *roomstore.Store) {
	permStore := acl.NewMemoryStore()
	mem := adapter.NewMemory(permStore)
	diff := diffsync.New(diffsync.Options{})
	rooms := roomstore.New(mem)

	return permStore, mem, diff, rooms
}

func newTestServer(t *testing.T) (*api.Server, *adapter.Memory, acl.Store) {
	t.Helper()

	permStore, mem, diff, rooms := newTestCollaborators()

	server := api.NewServer(api.Config{
		Adapter:   mem,
		Rooms:     rooms,
		PermStore: permStore,
		Diff:      diff,
	})

	return server, mem, permStore
}

func doRequest(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestHandleCreateRoom_Succeeds(t *testing.T) {
	t.Parallel()

	server, _, permStore := newTestServer(t)
	h := server.Handler()

	rec := doRequest(t, h, http.MethodPost, "/rooms", "alice", api.CreateRoomRequest{
		ID:  "r1",
		Doc: map[string]any{"text": "hello"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp api.CreateRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "r1", resp.ID)

	role, err := permStore.GetRole("r1", "alice")
	require.NoError(t, err)
	require.Equal(t, acl.Owner, role)
}

func TestHandleCreateRoom_MissingUserIsUnauthorized(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	h := server.Handler()

	rec := doRequest(t, h, http.MethodPost, "/rooms", "", api.CreateRoomRequest{ID: "r1"})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreateRoom_MissingIDIsBadRequest(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	h := server.Handler()

	rec := doRequest(t, h, http.MethodPost, "/rooms", "alice", api.CreateRoomRequest{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRoom_ReturnsSeededDocument(t *testing.T) {
	t.Parallel()

	server, mem, _ := newTestServer(t)
	h := server.Handler()

	require.NoError(t, mem.Seed(t.Context(), "r1", map[string]any{"text": "hi"}))

	rec := doRequest(t, h, http.MethodGet, "/rooms/r1", "alice", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.GetRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "r1", resp.ID)
	require.Equal(t, map[string]any{"text": "hi"}, resp.Doc)
}

func TestHandleDeleteRoom_RemovesDocument(t *testing.T) {
	t.Parallel()

	server, mem, permStore := newTestServer(t)
	h := server.Handler()

	require.NoError(t, mem.Seed(t.Context(), "r1", map[string]any{"text": "hi"}))
	require.NoError(t, permStore.Grant("r1", "alice", acl.Owner))

	rec := doRequest(t, h, http.MethodDelete, "/rooms/r1", "alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	doc, err := mem.GetData(t.Context(), "r1", "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, doc, "delete then GetData reseeds an empty document")
}

func TestHandleDeleteRoom_DeniedWithoutPermission(t *testing.T) {
	t.Parallel()

	server, mem, permStore := newTestServer(t)
	h := server.Handler()

	require.NoError(t, mem.Seed(t.Context(), "r1", map[string]any{}))
	require.NoError(t, permStore.Grant("r1", "bob", acl.Viewer))

	rec := doRequest(t, h, http.MethodDelete, "/rooms/r1", "bob", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleRoomByID_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	h := server.Handler()

	rec := doRequest(t, h, http.MethodPut, "/rooms/r1", "alice", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleRoomMembers_NotImplementedWithoutPresence(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	h := server.Handler()

	rec := doRequest(t, h, http.MethodGet, "/rooms/r1/members", "alice", nil)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleRoomMembers_ReturnsMembers(t *testing.T) {
	t.Parallel()

	permStore, mem, diff, rooms := newTestCollaborators()

	server := api.NewServer(api.Config{
		Adapter:   mem,
		Rooms:     rooms,
		PermStore: permStore,
		Diff:      diff,
		Router:    &router.Router{Presence: fakePresence{members: []string{"c1", "c2"}}},
	})
	h := server.Handler()

	rec := doRequest(t, h, http.MethodGet, "/rooms/r1/members", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.RoomMembersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "r1", resp.ID)
	require.ElementsMatch(t, []string{"c1", "c2"}, resp.Members)
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	h := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
