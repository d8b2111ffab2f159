package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/room"
	"github.com/serroba/diffsyncd/internal/transport"
	"github.com/serroba/diffsyncd/internal/transport/ws"
)

// joinPayload is the payload of a "join" envelope.
type joinPayload struct {
	Room string `json:"room"`
}

// handleWebSocket handles GET /ws: upgrades the connection, then loops
// reading envelopes until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	userID := adapter.UserIDFromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)

		return
	}

	client := ws.NewClient(uuid.New().String(), userID, conn, s.hub)
	s.hub.Register(client)

	defer func() {
		if joined := client.Room(); joined != "" {
			s.router.Leave(context.Background(), joined, client)
		}

		s.hub.Unregister(client)
		_ = client.Close()
	}()

	s.readLoop(r, client)
}

// readLoop dispatches every inbound envelope to the router until Receive
// fails, i.e. the client disconnected or sent malformed JSON.
func (s *Server) readLoop(r *http.Request, client *ws.Client) {
	for {
		env, err := client.Receive()
		if err != nil {
			return
		}

		switch env.Type {
		case commandJoin:
			s.handleJoinEnvelope(r, client, env)
		case commandSyncWithServer:
			s.handleSyncEnvelope(r, client, env)
		default:
			_ = client.Emit(commandError, "unknown message type: "+env.Type)
		}
	}
}

func (s *Server) handleJoinEnvelope(r *http.Request, client transport.Connection, env ws.Envelope) {
	var payload joinPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.Room == "" {
		_ = client.Emit(commandError, "join requires a room")

		return
	}

	initial, err := s.router.Join(r.Context(), client, payload.Room)
	if err != nil {
		s.logger.Warn("join failed", "room", payload.Room, "connection", client.ID(), "error", err)
		_ = client.Emit(commandError, "failed to join room")

		return
	}

	_ = client.Emit(commandJoin, initial)
}

func (s *Server) handleSyncEnvelope(r *http.Request, client transport.Connection, env ws.Envelope) {
	var msg room.EditMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		_ = client.Emit(commandError, "invalid syncWithServer payload")

		return
	}

	err := s.router.SyncWithServer(r.Context(), client, msg, func(reply room.Reply) error {
		return client.Emit(commandSyncWithServer, reply)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("sync failed", "room", msg.Room, "connection", client.ID(), "error", err)
		_ = client.Emit(commandError, "failed to process edit")
	}
}
