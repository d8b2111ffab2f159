package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/serroba/diffsyncd/internal/acl"
	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/router"
)

// CreateRoomRequest is the request body for POST /rooms. ID is
// caller-chosen; Doc seeds the room's initial content and defaults to
// an empty object when omitted.
type CreateRoomRequest struct {
	ID  string `json:"id"`
	Doc any    `json:"doc,omitempty"`
}

// CreateRoomResponse is the response body for POST /rooms.
type CreateRoomResponse struct {
	ID string `json:"id"`
}

// GetRoomResponse is the response body for GET /rooms/{id}.
type GetRoomResponse struct {
	ID  string `json:"id"`
	Doc any    `json:"doc"`
}

// RoomMembersResponse is the response body for GET /rooms/{id}/members.
type RoomMembersResponse struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// handleCreateRoom handles POST /rooms.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if req.ID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)

		return
	}

	doc := req.Doc
	if doc == nil {
		doc = map[string]any{}
	}

	seeder, ok := s.adapter.(adapter.Seeder)
	if !ok {
		http.Error(w, "room creation with content is not supported by this adapter", http.StatusNotImplemented)

		return
	}

	if err := seeder.Seed(r.Context(), req.ID, doc); err != nil {
		s.logger.Warn("seed room failed", "room", req.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	userID := adapter.UserIDFromContext(r.Context())
	if s.permStore != nil && userID != "" {
		if err := s.permStore.Grant(req.ID, userID, acl.Owner); err != nil {
			s.logger.Warn("grant owner role failed", "room", req.ID, "user", userID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(CreateRoomResponse{ID: req.ID}); err != nil {
		s.logger.Warn("encode create room response failed", "error", err)
	}
}

// handleGetRoom handles GET /rooms/{id}: the room's live server copy,
// loaded through the same cache the sync core uses.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := extractRoomID(r.URL.Path)
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)

		return
	}

	userID := adapter.UserIDFromContext(r.Context())

	state, err := s.rooms.GetData(r.Context(), roomID, userID)
	if err != nil {
		s.logger.Warn("get room failed", "room", roomID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	state.Lock()
	doc := s.diff.DeepCopy(state.ServerCopy)
	state.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(GetRoomResponse{ID: roomID, Doc: doc}); err != nil {
		s.logger.Warn("encode get room response failed", "error", err)
	}
}

// handleDeleteRoom handles DELETE /rooms/{id}.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := extractRoomID(r.URL.Path)
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)

		return
	}

	userID := adapter.UserIDFromContext(r.Context())

	if s.permStore != nil {
		checker := acl.NewChecker(s.permStore)
		if err := checker.RequirePermission(roomID, userID, acl.ActionDelete); err != nil {
			http.Error(w, "access denied", http.StatusForbidden)

			return
		}
	}

	deleter, ok := s.adapter.(adapter.Deleter)
	if !ok {
		http.Error(w, "room deletion is not supported by this adapter", http.StatusNotImplemented)

		return
	}

	if err := deleter.Delete(r.Context(), roomID); err != nil {
		s.logger.Warn("delete room failed", "room", roomID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRoomByID routes GET and DELETE requests for /rooms/{id}, and GET
// requests for /rooms/{id}/members.
func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/members") {
		s.handleRoomMembers(w, r)

		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetRoom(w, r)
	case http.MethodDelete:
		s.handleDeleteRoom(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRoomMembers handles GET /rooms/{id}/members: the connection IDs
// a cross-process presence tracker currently has recorded for a room.
// Returns 501 when no such tracker is configured, e.g. a single-process
// deployment with no Redis presence backend.
func (s *Server) handleRoomMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	roomID := extractRoomID(r.URL.Path)
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)

		return
	}

	lister, ok := s.presenceLister()
	if !ok {
		http.Error(w, "room membership listing is not enabled", http.StatusNotImplemented)

		return
	}

	members, err := lister.Members(r.Context(), roomID)
	if err != nil {
		s.logger.Warn("list room members failed", "room", roomID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(RoomMembersResponse{ID: roomID, Members: members}); err != nil {
		s.logger.Warn("encode room members response failed", "error", err)
	}
}

func (s *Server) presenceLister() (router.PresenceLister, bool) {
	if s.router == nil || s.router.Presence == nil {
		return nil, false
	}

	lister, ok := s.router.Presence.(router.PresenceLister)

	return lister, ok
}

func extractRoomID(path string) string {
	const prefix = "/rooms/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}

	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimSuffix(id, "/members")

	return id
}
