package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"proctorboard/internal/api"
	"proctorboard/internal/config"
	"proctorboard/internal/database"
	"proctorboard/internal/monitor"
)

// Application coordinates all system components. The connection registry
// is owned here explicitly: constructed at startup, every connection
// closed at shutdown, nothing survives a restart.
type Application struct {
	config     *config.Config
	store      *database.Manager
	registry   *monitor.Registry
	hub        *monitor.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication initializes components in dependency order:
// Store → Registry → Router → Hub → API → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.NewManager(&database.Config{
		Path:            cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	registry := monitor.NewRegistry()
	router := monitor.NewRouter(registry, store)
	hub := monitor.NewHub(router)

	apiServer := api.NewServer(store, registry)
	wsHandler := monitor.NewHandler(registry, hub,
		cfg.WebSocket.PingInterval,
		cfg.WebSocket.ReadTimeout,
		cfg.WebSocket.WriteTimeout,
		cfg.WebSocket.BufferSize,
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		registry:   registry,
		hub:        hub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution. The hub starts first so inbound
// events have somewhere to go before the first connection arrives.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting proctorboard on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("proctorboard started")
		return nil
	case <-ctx.Done():
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP → Hub → Registry → Store. Registered connections are closed, not
// drained; clients are expected to reconnect to a fresh process.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down proctorboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.hub.Stop(); err != nil {
		log.Printf("Event hub shutdown error: %v", err)
	}

	app.registry.CloseAll()

	if err := app.store.Close(); err != nil {
		log.Printf("Session store shutdown error: %v", err)
	}

	log.Printf("proctorboard shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
