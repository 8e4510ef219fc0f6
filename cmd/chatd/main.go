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

	"github.com/loopwork/agentchat/internal/ai"
	"github.com/loopwork/agentchat/internal/api"
	"github.com/loopwork/agentchat/internal/chat"
	"github.com/loopwork/agentchat/internal/config"
	"github.com/loopwork/agentchat/internal/daemon"
	"github.com/loopwork/agentchat/internal/engine"
	"github.com/loopwork/agentchat/internal/eventbus"
	"github.com/loopwork/agentchat/internal/run"
	"github.com/loopwork/agentchat/internal/session"
	"github.com/loopwork/agentchat/internal/state"
	"github.com/loopwork/agentchat/internal/web"
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

	bus := eventbus.NewBus(db)

	store, err := session.NewStore(cfg.SessionsPath)
	if err != nil {
		log.Printf("session store unavailable, running ephemeral: %v", err)
		store, _ = session.NewStore("")
	}

	var agent *engine.CodeAgent
	if cfg.LLMModel != "" && cfg.LLMAPIKey != "" {
		model, err := ai.NewModel(ai.Config{
			Provider: cfg.LLMProvider,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
			BaseURL:  cfg.LLMBaseURL,
		})
		if err != nil {
			log.Printf("LLM disabled: %v", err)
		} else {
			agent = engine.New(model, &engine.PythonExecutor{
				Python:  cfg.Python,
				Timeout: cfg.ExecTimeout,
			})
			agent.MaxSteps = cfg.MaxSteps
		}
	} else {
		log.Printf("LLM disabled: no model or API key configured")
	}

	bridge := &run.Bridge{Journal: bus}
	memory := engine.NewMemory()
	if agent != nil {
		memory = agent.Memory
		bridge.Agent = run.AgentRunner{Agent: agent}
	}
	controller := chat.NewController(store, memory, bridge)

	listener, err := daemon.ListenerFromEnv()
	if err != nil {
		log.Fatalf("listener: %v", err)
	}
	if listener == nil {
		listener, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
	}

	var httpServer *http.Server
	serverCtx, serverCancel := context.WithCancel(context.Background())

	restarter := &daemon.Restarter{
		Listener: listener,
		Args:     os.Args,
		Env:      os.Environ(),
	}
	restartFn := func() error {
		if err := restarter.Restart(); err != nil {
			return err
		}
		go func() {
			time.Sleep(750 * time.Millisecond)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
			os.Exit(0)
		}()
		return nil
	}

	apiServer := &api.Server{
		Chat:         controller,
		Store:        store,
		Bus:          bus,
		Restart:      restartFn,
		RestartToken: cfg.RestartToken,
	}
	webServer := &web.Server{Dir: cfg.WebDir}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Handler())
	mux.Handle("/", webServer.Handler())

	httpServer = &http.Server{
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		log.Printf("chatd listening on %s", listener.Addr())
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
