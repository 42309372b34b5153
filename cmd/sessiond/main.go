package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/api"
	"github.com/flitsinc/agent-sessions/internal/config"
	"github.com/flitsinc/agent-sessions/internal/engine/openaiengine"
	"github.com/flitsinc/agent-sessions/internal/eventbus"
	"github.com/flitsinc/agent-sessions/internal/session"
	"github.com/flitsinc/agent-sessions/internal/state"
	"github.com/flitsinc/agent-sessions/internal/tools"
)

func main() {
	cfg := config.Load()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if cfg.LLMAPIKey == "" {
		log.Fatalf("AGENT_SESSIONS_LLM_API_KEY is required")
	}

	registry := tools.Builtin()
	graph, err := agents.Default(registry)
	if err != nil {
		log.Fatalf("agent graph: %v", err)
	}

	eng, err := openaiengine.New(openaiengine.Config{
		Model:  cfg.LLMModel,
		APIKey: cfg.LLMAPIKey,
	}, graph)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	store := state.NewStore(db)
	bus := eventbus.NewBus(db)
	sessions := session.NewManager(eng, graph, bus, store, session.Options{
		MaxSessions:     cfg.MaxSessions,
		MaxHistory:      cfg.MaxHistory,
		DefaultMaxTurns: cfg.DefaultMaxTurns,
	})

	apiServer := &api.Server{Sessions: sessions, Bus: bus, Store: store}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Handler:           loggingMiddleware(apiServer.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		log.Printf("sessiond listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	serverCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	_ = httpServer.Close()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
