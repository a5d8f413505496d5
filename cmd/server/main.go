// Predictrix chat core - encrypted TCP group-chat and assertion-market
// server.
//
// ARCHITECTURE ROLE:
// - TCP Listener: accepts RSA/AES-GCM-encrypted connections and drives
//   each session's framed command loop (spec §4.1/§4.2)
// - Command Dispatcher: routes 4-byte wire codes to their handlers
// - Event Fan-out: delivers server-initiated pushes ("newm"/"assr") to
//   every session registered under a recipient userId
// - Persistence: Postgres-backed users/chats/assertions store
// - Caching: Redis-backed profile cache with an in-memory fallback
// - Admin HTTP: a tiny Fiber surface exposing /healthz
//
// STARTUP SEQUENCE mirrors the teacher's cmd/api/main.go phases:
// config+logging -> cache (Redis, memory fallback) -> store (Postgres,
// retry-with-backoff, schema) -> identity/push HTTP clients -> chat
// lock manager + event engine -> dispatcher + handler registration ->
// admin HTTP server -> TCP accept loop -> graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"predictrix/server/internal/adminhttp"
	"predictrix/server/internal/cache"
	"predictrix/server/internal/chatlock"
	"predictrix/server/internal/config"
	"predictrix/server/internal/dispatch"
	"predictrix/server/internal/events"
	"predictrix/server/internal/handlers"
	"predictrix/server/internal/identity"
	"predictrix/server/internal/push"
	"predictrix/server/internal/store"
	"predictrix/server/internal/wire"
)

func main() {
	// PHASE 1: CONFIGURATION AND LOGGING
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Server.Environment == "development" {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))

	// PHASE 2: CACHE SETUP WITH MEMORY FALLBACK
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr(cfg.Redis.URL),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	var chatCache cache.Service
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis connection failed, falling back to memory cache", "error", err)
		redisClient.Close()
		chatCache = cache.NewMemoryCache()
	} else {
		slog.Info("redis connection established")
		chatCache = cache.NewRedisCache(redisClient)
	}
	pingCancel()

	// PHASE 3: PERSISTENCE
	slog.Info("connecting to postgres")
	st, err := store.Open(cfg)
	if err != nil {
		log.Fatal("database connection required: ", err)
	}
	defer st.Close()

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := st.EnsureSchema(schemaCtx); err != nil {
		slog.Error("schema setup failed", "error", err)
	}
	schemaCancel()

	// PHASE 4: EXTERNAL SERVICE CLIENTS
	verifier := identity.NewHTTPVerifier(cfg.Identity)
	notifier := push.NewHTTPNotifier(cfg.Push)

	// PHASE 5: CHAT CORE COLLABORATORS
	locks := chatlock.New()
	eventEngine := events.New(1024)
	defer eventEngine.Shutdown()

	deps := &handlers.Deps{
		Store:      st,
		Cache:      chatCache,
		Verifier:   verifier,
		Notifier:   notifier,
		Locks:      locks,
		Events:     eventEngine,
		JoinSecret: cfg.JoinSecret,
	}
	dispatcher := dispatch.New()
	handlers.Register(dispatcher, deps)

	// PHASE 6: ADMIN HTTP SURFACE
	admin := adminhttp.New(cfg, st, chatCache)
	go func() {
		slog.Info("admin http listening", "addr", cfg.Server.AdminHTTPAddr)
		if err := admin.Listen(cfg.Server.AdminHTTPAddr); err != nil {
			slog.Error("admin http server stopped", "error", err)
		}
	}()

	// PHASE 7: TCP LISTENER
	listener, err := net.Listen("tcp", cfg.Server.TCPListenAddr)
	if err != nil {
		log.Fatal("failed to bind tcp listener: ", err)
	}
	slog.Info("tcp chat listener started", "addr", cfg.Server.TCPListenAddr)

	// PHASE 8: GRACEFUL SHUTDOWN
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		slog.Info("shutting down")
		_ = listener.Close()
		eventEngine.Shutdown()
		if err := admin.Shutdown(); err != nil {
			slog.Error("admin http shutdown error", "error", err)
		}
		if err := chatCache.Close(); err != nil {
			slog.Error("cache close error", "error", err)
		}
		if err := st.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
		slog.Info("shutdown complete")
		os.Exit(0)
	}()

	acceptLoop(listener, dispatcher, eventEngine)
}

// acceptLoop accepts connections forever, handing each to its own
// goroutine - one goroutine per session, the same model the original
// server's daemon-threaded accept loop (main.py) uses.
func acceptLoop(listener net.Listener, dispatcher *dispatch.Dispatcher, eventEngine *events.Engine) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			slog.Info("tcp listener stopped accepting", "error", err)
			return
		}
		go handleConnection(conn, dispatcher, eventEngine)
	}
}

func handleConnection(conn net.Conn, dispatcher *dispatch.Dispatcher, eventEngine *events.Engine) {
	sess, err := wire.Accept(conn)
	if err != nil {
		slog.Warn("handshake failed, closing connection", "remote_addr", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}
	defer func() {
		if sess.UserID != "" {
			eventEngine.Unregister(sess.UserID, sess)
		}
		_ = sess.Close()
	}()

	ctx := context.Background()
	slog.Info("session established", "conn_id", sess.ConnID, "remote_addr", sess.RemoteAddr)

	for {
		frame, err := sess.Recv()
		if err != nil {
			slog.Debug("session read ended", "conn_id", sess.ConnID, "error", err)
			return
		}
		if !dispatcher.Dispatch(ctx, sess, frame) {
			slog.Debug("session closed by handler", "conn_id", sess.ConnID)
			return
		}
	}
}

func redisAddr(url string) string {
	const prefix = "redis://"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}
