package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/api"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/config"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/metrics"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/review"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/routers"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/session"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/store"
)

// swapped out in tests
var (
	listenAndServe = http.ListenAndServe
	exitFunc       = func(err error) { log.Fatal(err) }
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	snapshots := store.NewRedisStore(rdb)

	hub := session.NewHub(snapshots, session.HubConfig{
		Room: session.RoomConfig{
			QueueSize: cfg.SendQueueSize,
			LogWindow: cfg.EditLogWindow,
		},
		EvictGrace:      cfg.EvictGrace,
		PersistInterval: cfg.PersistInterval,
	}, logger)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	manager := session.NewManager(hub, cfg.IdleTimeout, logger)
	go manager.Run(ctx)

	var reviewer *review.Client
	if cfg.ReviewServiceURL != "" {
		reviewer = review.NewClient(cfg.ReviewServiceURL)
	}

	h := api.NewHandlers(logger, hub, manager, reviewer, []byte(cfg.JWTSecret), cfg.SendQueueSize)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Accept"},
		}),
		metrics.Middleware,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/", routers.New(h))

	addr := ":" + cfg.Port
	logger.Info("collab engine listening", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(addr, r) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		// hub.Run persists every room's snapshot before returning
		<-hubDone
		logger.Info("shutdown complete")
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		exitFunc(err)
	}
}
