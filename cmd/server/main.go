// main wires high-level dependencies and keeps the server lifecycle small.
// Classification logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"crmscan/internal/cache"
	memorystore "crmscan/internal/cache/store/memory"
	redisstore "crmscan/internal/cache/store/redis"
	"crmscan/internal/crm"
	"crmscan/internal/engine"
	"crmscan/internal/platform/config"
	"crmscan/internal/platform/httpserver"
	"crmscan/internal/platform/logger"
	"crmscan/internal/platform/metrics"
	"crmscan/internal/platform/redis"
	"crmscan/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	var store cache.Store = memorystore.New()
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		store = redisstore.New(redisClient, "crmscan:")
		log.Info("using redis snapshot store")
	}

	m := metrics.New()
	client := crm.New(crm.Config{
		Token:          cfg.CRM.Token,
		BaseV1:         cfg.CRM.BaseV1,
		BaseV2:         cfg.CRM.BaseV2,
		RequestTimeout: cfg.Engine.RequestTimeout,
		MaxRetries:     cfg.Engine.MaxRetries,
		RetryBaseDelay: cfg.Engine.RetryBaseDelay,
	}, crm.WithLogger(log), crm.WithMetrics(m))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(ctx, client, store, cfg.Engine,
		engine.WithLogger(log),
		engine.WithMetrics(m),
	)

	// debounced trigger stream: hosts post events, then long-poll /v1/rescan
	rescans := make(chan struct{}, 1)
	watcher := engine.NewWatcher(func() {
		select {
		case rescans <- struct{}{}:
		default:
		}
	}, log)
	go watcher.Run(ctx)

	handler := server.New(eng, watcher, rescans, log)
	srv := httpserver.New(cfg.Addr, server.NewRouter(handler, log))

	log.Info("starting crmscan sidecar", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Flush(shutdownCtx); err != nil {
		log.Warn("final cache flush failed", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
