package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/TechSnatchers/classpulse2-sub000/internal/api"
	"github.com/TechSnatchers/classpulse2-sub000/internal/broadcast"
	"github.com/TechSnatchers/classpulse2-sub000/internal/catchup"
	"github.com/TechSnatchers/classpulse2-sub000/internal/config"
	"github.com/TechSnatchers/classpulse2-sub000/internal/database"
	"github.com/TechSnatchers/classpulse2-sub000/internal/hub"
	"github.com/TechSnatchers/classpulse2-sub000/internal/room"
	"github.com/TechSnatchers/classpulse2-sub000/internal/scheduler"
	"github.com/TechSnatchers/classpulse2-sub000/internal/websocket"
	pkgdatabase "github.com/TechSnatchers/classpulse2-sub000/pkg/database"
)

// Application wires every component in dependency order:
// Database → Catch-up cache → Registry → Engine → Hub → Scheduler → API → HTTP.
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	cache      *catchup.Cache
	registry   *room.Registry
	engine     *broadcast.Engine
	hub        *hub.Hub
	scheduler  *scheduler.Scheduler
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds the full component graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("initialize database manager: %w", err)
	}

	store, err := newCatchupStore(cfg.Catchup)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("initialize catch-up store: %w", err)
	}
	cache := catchup.NewCache(store, cfg.Catchup.MaxAge)

	registry := room.NewRegistry()
	engine := broadcast.NewEngine(registry, cache, dbManager)
	sessionHub := hub.NewHub(registry, engine, cache)
	quizScheduler := scheduler.NewScheduler(engine, dbManager)

	apiServer := api.NewServer(sessionHub, engine, quizScheduler, dbManager,
		cfg.Scheduler.FirstDelay, cfg.Scheduler.Interval)
	wsHandler := websocket.NewHandler(sessionHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		cache:      cache,
		registry:   registry,
		engine:     engine,
		hub:        sessionHub,
		scheduler:  quizScheduler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

func newCatchupStore(cfg *config.CatchupConfig) (catchup.Store, error) {
	switch catchup.StoreType(cfg.Store) {
	case catchup.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return catchup.NewStore(catchup.StoreTypeRedis,
			catchup.WithRedisClient(client),
			catchup.WithRedisTTL(cfg.MaxAge*2))
	default:
		return catchup.NewStore(catchup.StoreTypeMemory)
	}
}

// Start brings the HTTP server up and verifies it is accepting connections.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting ClassPulse application on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("ClassPulse application started successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order:
// HTTP → Scheduler → Catch-up store → Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down ClassPulse application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.scheduler.StopAll()

	if err := app.cache.Close(); err != nil {
		log.Printf("Catch-up store shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("ClassPulse application shutdown complete")
	return nil
}

// GetAddr returns the listen address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
