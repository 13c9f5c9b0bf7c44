// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jetarena/jetarena/internal/auth"
	"github.com/jetarena/jetarena/internal/database"
	"github.com/jetarena/jetarena/internal/handlers"
	"github.com/jetarena/jetarena/internal/matchmaking"
	"github.com/jetarena/jetarena/internal/middleware"
	"github.com/jetarena/jetarena/internal/presence"
	"github.com/jetarena/jetarena/internal/relay"
	"github.com/jetarena/jetarena/internal/room"
	"github.com/jetarena/jetarena/internal/store"
)

func main() {
	logger := logrus.New()
	if os.Getenv("DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	auth.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shared ephemeral store: Redis when reachable, otherwise the in-process
	// implementation behind the same interface (single-node only).
	var st store.Store
	if rs, err := store.ConnectRedis(ctx); err != nil {
		logger.Warnf("redis unavailable (%v), falling back to in-memory store", err)
		st = store.NewMemoryStore()
	} else {
		defer rs.Close()
		st = rs
	}

	// Durable persistence is optional; without it match results simply are not
	// recorded.
	if err := database.ConnectDB(ctx); err != nil {
		logger.Warnf("running without match persistence: %v", err)
	} else {
		defer database.Close()
		logger.Info("connected to postgres")
	}

	rooms := room.NewRegistry(st, logger)
	queue := matchmaking.NewQueue(st, rooms, logger)
	dir := presence.NewDirectory(st)

	rly := relay.NewServer(rooms, logger)
	rly.OnMatchEnd = func(r *room.Room) {
		if !database.Enabled() {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := database.RecordMatchResult(ctx, r); err != nil {
				logger.Warnf("failed to record match result for room %s: %v", r.Code, err)
			}
			if idx := r.PlayerIndex(r.WinnerID); idx >= 0 {
				if err := database.RecordVictory(ctx, r.WinnerID, r.Players[idx].Name); err != nil {
					logger.Warnf("failed to record victory for %s: %v", r.WinnerID, err)
				}
			}
		}()
	}

	api := handlers.NewAPIServer(logger, rooms, queue, dir, rly)
	mux := http.NewServeMux()
	api.Routes(mux)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: middleware.LogMiddleware(logger)(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown error: %v", err)
		}
	}()

	logger.Infof("Running on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}
