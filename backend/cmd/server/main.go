package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mindgraph/backend/internal/api"
	"mindgraph/backend/internal/services"
	"mindgraph/backend/pkg/config"
	"mindgraph/backend/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	sm, err := services.NewServiceManager(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer sm.StopAll()

	srv, err := newHTTPServer(cfg, sm, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	sm.StartAll(gctx)

	g.Go(func() error {
		log.Info("Server started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	return g.Wait()
}

func newHTTPServer(cfg *config.Config, sm *services.ServiceManager, log *zap.Logger) (*http.Server, error) {
	identity, err := sm.Identity()
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}

	router := api.NewRouter(sm.Orchestrator, api.Options{
		Identity: identity,
		Metrics:  sm.Metrics,
		Logger:   log,
		Release:  cfg.IsProduction(),
	})

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
