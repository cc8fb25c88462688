// cmd/api/main.go

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/JosueRDx/DotsGo-backend/internal/config"
	"github.com/JosueRDx/DotsGo-backend/internal/guard"
	"github.com/JosueRDx/DotsGo-backend/internal/handlers"
	"github.com/JosueRDx/DotsGo-backend/internal/repository"
	"github.com/JosueRDx/DotsGo-backend/internal/service"
	"github.com/JosueRDx/DotsGo-backend/internal/websocket"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	db, err := repository.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}

	hub := websocket.NewHub(logger)
	go hub.Run()

	roomRepo := repository.NewRoomRepository(db)
	questionRepo := repository.NewQuestionRepository(db)

	fingers := guard.NewFingerprintGuard()
	limiter := guard.NewRateLimiter(guard.DefaultRules(), guard.LimitRule{})
	timers := service.NewTimerTable()

	roomService := service.NewRoomService(roomRepo, questionRepo, hub, fingers, timers, logger)
	gameService := service.NewGameService(roomRepo, questionRepo, hub, timers, logger)
	roomService.SetRosterShrinkHook(gameService.EarlyFinishIfComplete)
	presenceService := service.NewPresenceService(roomRepo, hub, fingers, timers, logger)
	presenceService.SetRosterShrinkHook(gameService.EarlyFinishIfComplete)
	tournamentService := service.NewTournamentService(roomRepo, hub, timers, gameService, logger)
	cleanupService := service.NewCleanupService(roomRepo, hub, fingers, limiter, timers, logger)

	hub.SetDisconnectHandler(func(connID, pin string) {
		limiter.Forget(connID)
		presenceService.HandleDisconnect(connID, pin)
	})

	gameHandler := handlers.NewGameHandler(roomService, gameService, tournamentService, limiter, hub, logger)
	httpHandler := handlers.NewHTTPHandler(roomService)
	wsHandler := websocket.NewHandler(hub, logger)
	wsHandler.SetMessageHandler(gameHandler.HandleMessage)

	router := gin.New()
	router.Use(gin.Recovery())
	httpHandler.RegisterRoutes(router)
	wsHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := cleanupService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		timers.CancelAll()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
