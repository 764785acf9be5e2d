package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/emi-live/backend/internal/app"
	"github.com/zhouzirui/emi-live/backend/internal/config"
	"github.com/zhouzirui/emi-live/backend/internal/handler"
	"github.com/zhouzirui/emi-live/backend/internal/handler/live"
	"github.com/zhouzirui/emi-live/backend/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log)
	defer func() { _ = logger.Sync() }()

	hub := live.NewHub(logger)
	components, err := app.New(ctx, cfg, logger, app.Hooks{
		OnEvent: hub.OnSessionEvent,
		OnState: hub.OnStateChange,
	})
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer components.Close()

	router := handler.NewRouter(handler.Deps{
		Session:        components.Client,
		Events:         hub,
		Profiles:       components.Profiles,
		History:        components.History,
		Metrics:        components.Metrics,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	if err := startServer(ctx, cfg.Server, router, logger); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Emi live backend listening", zap.String("addr", serverCfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
