package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/serroba/diffsyncd/internal/acl"
	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/api"
	"github.com/serroba/diffsyncd/internal/config"
	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/edit"
	"github.com/serroba/diffsyncd/internal/router"
	"github.com/serroba/diffsyncd/internal/roomstore"
	"github.com/serroba/diffsyncd/internal/save"
	"github.com/serroba/diffsyncd/internal/transport/ws"
)

func main() {
	cfg, err := config.Load(os.Getenv("DIFFSYNC_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	permStore := acl.NewMemoryStore()

	roomAdapter, closeAdapter, err := newAdapter(ctx, cfg, permStore)
	if err != nil {
		logger.Error("adapter init failed", "error", err)
		log.Fatal(err)
	}
	defer closeAdapter()

	presence, closePresence, err := newPresence(cfg, logger)
	if err != nil {
		logger.Error("presence init failed", "error", err)
		log.Fatal(err)
	}
	defer closePresence()

	diffEngine := diffsync.New(diffsync.Options{})
	rooms := roomstore.New(roomAdapter)
	saver := save.New(roomAdapter, rooms, logger)
	hub := ws.NewHub(logger)

	editor := edit.New(rooms, roomAdapter, saver, hub, diffEngine, logger)
	rtr := router.New(rooms, editor, diffEngine)
	rtr.Presence = presence

	if refresher, ok := presence.(router.PresenceRefresher); ok {
		go refreshPresenceLoop(ctx, hub, refresher, logger, refreshInterval(cfg.SocketTTL))
	}

	server := api.NewServer(api.Config{
		Adapter:            roomAdapter,
		Rooms:              rooms,
		PermStore:          permStore,
		Diff:               diffEngine,
		Router:             rtr,
		Hub:                hub,
		Logger:             logger,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server crashed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown starting")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newLogger returns a slog.Logger formatted for env: prod gets JSON at
// info level, anything else gets text at debug level.
func newLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	return slog.New(handler)
}

// newAdapter picks Postgres when DatabaseURL is configured, otherwise
// falls back to the in-memory adapter. The returned close func releases
// whatever backing connection was opened, and is always safe to call.
func newAdapter(ctx context.Context, cfg config.Config, permStore acl.Store) (adapter.Adapter, func(), error) {
	if cfg.DatabaseURL == "" {
		return adapter.NewMemory(permStore), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, err
	}

	pg := adapter.NewPostgres(pool, permStore)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()

		return nil, func() {}, err
	}

	return pg, func() { pool.Close() }, nil
}

// newPresence constructs a RedisPresence when RedisAddr is configured,
// independent of which storage adapter is in use: cross-process
// broadcast membership is a transport-layer concern, not a storage one.
// Returns a nil router.Presence when disabled, which Router treats as
// "single-process, in-memory membership only".
func newPresence(cfg config.Config, logger *slog.Logger) (router.Presence, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}

	logger.Info("redis presence enabled", "addr", cfg.RedisAddr)

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	return adapter.NewRedisPresence(client, cfg.SocketTTL), func() { _ = client.Close() }, nil
}

// refreshInterval picks how often refreshPresenceLoop renews a room's
// presence TTL: a third of the TTL leaves margin for two missed ticks
// before an entry could expire out from under a live connection.
func refreshInterval(ttl time.Duration) time.Duration {
	const minInterval = 5 * time.Second

	interval := ttl / 3
	if interval < minInterval {
		return minInterval
	}

	return interval
}

// refreshPresenceLoop periodically renews the presence TTL for every
// room this process currently has live connections for. A process that
// crashes instead of shutting down cleanly stops refreshing, and its
// entries expire on their own once the TTL elapses.
func refreshPresenceLoop(ctx context.Context, hub *ws.Hub, refresher router.PresenceRefresher, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, roomID := range hub.Rooms() {
				if err := refresher.Refresh(ctx, roomID); err != nil {
					logger.Warn("presence refresh failed", "room", roomID, "error", err)
				}
			}
		}
	}
}
