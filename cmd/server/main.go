// Package main provides the gridverse server binary: the HTTP API plus the
// realtime websocket endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/api"
	"github.com/cjmeyer/gridverse/internal/auth"
	"github.com/cjmeyer/gridverse/internal/config"
	"github.com/cjmeyer/gridverse/internal/grid"
	"github.com/cjmeyer/gridverse/internal/observability"
	"github.com/cjmeyer/gridverse/internal/realtime"
	"github.com/cjmeyer/gridverse/internal/server"
	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

// spaceResolver adapts the storage layer's space lookup to the realtime
// engine's contract, translating the storage sentinel to the engine's.
type spaceResolver struct {
	spaces *postgres.SpaceRepository
}

func (r spaceResolver) ResolveSpace(ctx context.Context, spaceID string) (grid.Space, error) {
	g, err := r.spaces.ResolveSpace(ctx, spaceID)
	if err != nil {
		if errors.Is(err, postgres.ErrSpaceNotFound) {
			return grid.Space{}, realtime.ErrSpaceNotFound
		}
		return grid.Space{}, err
	}
	return g, nil
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting server", zap.String("http_addr", cfg.HTTP.Addr()))

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	accounts := postgres.NewAccountRepository(pool.DB())
	avatars := postgres.NewAvatarRepository(pool.DB())
	elements := postgres.NewElementRepository(pool.DB())
	maps := postgres.NewMapRepository(pool.DB())
	spaces := postgres.NewSpaceRepository(pool.DB())

	tokens := auth.NewManager(cfg.Auth)

	registry := realtime.NewRegistry(logger)
	engine := realtime.NewEngine(registry, tokens, spaceResolver{spaces: spaces}, logger)
	wsServer := realtime.NewServer(engine, cfg.Realtime, logger)

	handler := api.NewHandler(accounts, avatars, elements, maps, spaces, tokens, logger)
	router := api.Routes(handler, tokens)
	router.Get("/ws", wsServer.ServeHTTP)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		},
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
