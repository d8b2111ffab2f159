// Package api is the HTTP surface of diffsyncd: room CRUD, health and
// metrics endpoints, and the WebSocket upgrade that hands a connection
// off to the sync core.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/serroba/diffsyncd/internal/acl"
	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/router"
	"github.com/serroba/diffsyncd/internal/roomstore"
	"github.com/serroba/diffsyncd/internal/transport/ws"
)

// Wire event names shared with clients. Kept distinct from
// router.Commands' Go-side names since the wire format is a separate
// concern from the in-process dispatch table, even though today they
// happen to agree.
const (
	commandJoin           = "join"
	commandSyncWithServer = "syncWithServer"
	commandError          = "error"
)

// Server handles HTTP and WebSocket requests for diffsyncd.
type Server struct {
	adapter   adapter.Adapter
	rooms     *roomstore.Store
	permStore acl.Store
	diff      *diffsync.Engine
	router    *router.Router
	hub       *ws.Hub
	logger    *slog.Logger

	upgrader websocket.Upgrader
	limiter  *mapLimiter
}

// Config holds the collaborators a Server is built from.
type Config struct {
	Adapter   adapter.Adapter
	Rooms     *roomstore.Store
	PermStore acl.Store
	Diff      *diffsync.Engine
	Router    *router.Router
	Hub       *ws.Hub
	Logger    *slog.Logger

	// RateLimitPerSecond and RateLimitBurst configure the per-key token
	// bucket applied to every request. A non-positive
	// RateLimitPerSecond disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewServer creates a Server from cfg.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		adapter:   cfg.Adapter,
		rooms:     cfg.Rooms,
		permStore: cfg.PermStore,
		diff:      cfg.Diff,
		router:    cfg.Router,
		hub:       cfg.Hub,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		limiter: newMapLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	}
}

// Handler returns an http.Handler with every route wired up.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/rooms", s.rateLimitMiddleware(s.authMiddleware(http.HandlerFunc(s.handleCreateRoom))))
	mux.Handle("/rooms/", s.rateLimitMiddleware(s.authMiddleware(http.HandlerFunc(s.handleRoomByID))))
	mux.Handle("/ws", s.rateLimitMiddleware(s.authMiddleware(http.HandlerFunc(s.handleWebSocket))))

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metricsHandler())

	return mux
}
