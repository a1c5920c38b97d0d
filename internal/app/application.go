package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agiletools/internal/api"
	"agiletools/internal/config"
	"agiletools/internal/database"
	"agiletools/internal/hub"
	"agiletools/internal/poker"
	"agiletools/internal/router"
	"agiletools/internal/session"
	"agiletools/internal/telemetry"
	"agiletools/internal/websocket"
	"agiletools/internal/wheel"
	pkgdatabase "agiletools/pkg/database"
	"agiletools/pkg/types"
)

// rateLimiterCleanupInterval is how often idle rate limiter entries are pruned
const rateLimiterCleanupInterval = time.Minute

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	sessionManager *session.Manager
	registry       *websocket.Registry
	messageRouter  *router.Router
	eventHub       *hub.Hub
	apiServer      *api.Server
	httpServer     *http.Server
	shutdownTrace  func(context.Context) error

	mu       sync.Mutex
	listener net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Registry → Router → Hub → Session → Wheel → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownTrace, err := telemetry.Setup(context.Background(), telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	// STEP 1: Database manager applies migrations and starts the single writer
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.Driver = cfg.Database.Driver
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.WriteTimeout = cfg.Database.Timeout

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		_ = shutdownTrace(context.Background())
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Stream plumbing: registry, inbound message router, event hub
	registry := websocket.NewRegistry()
	messageRouter := router.NewRouter(registry, router.NewRateLimiter(router.DefaultRateLimit, router.DefaultRateWindow))
	eventHub := hub.NewHub(registry, messageRouter)

	// STEP 3: Session manager publishes through the hub and is warmed from the store
	var deck *types.Deck
	if len(cfg.Poker.Deck) > 0 {
		deck = types.NewDeck(cfg.Poker.Deck)
	}
	machine := poker.NewMachine(deck)
	sessionManager := session.NewManager(dbManager, eventHub, machine, session.WithCodeLength(cfg.Poker.CodeLength))
	if err := sessionManager.LoadActiveSessions(context.Background()); err != nil {
		_ = dbManager.Close()
		_ = shutdownTrace(context.Background())
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}

	// STEP 4: Decision wheel
	selector, err := wheel.NewSelector()
	if err != nil {
		_ = dbManager.Close()
		_ = shutdownTrace(context.Background())
		return nil, fmt.Errorf("failed to seed wheel selector: %w", err)
	}
	wheelService := wheel.NewService(dbManager, selector)

	// STEP 5: Stream handler and API share one mux
	wsHandler := websocket.NewHandler(registry, sessionManager, machine, eventHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})
	apiServer := api.NewServer(api.Deps{
		Sessions: sessionManager,
		Machine:  machine,
		Wheel:    wheelService,
		Database: dbManager,
		Registry: registry,
		Hub:      eventHub,
		Stream:   http.HandlerFunc(wsHandler.HandleWebSocket),
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		sessionManager: sessionManager,
		registry:       registry,
		messageRouter:  messageRouter,
		eventHub:       eventHub,
		apiServer:      apiServer,
		httpServer:     httpServer,
		shutdownTrace:  shutdownTrace,
	}, nil
}

// Start binds the listener and launches the hub, the rate limiter janitor and the HTTP server
// FUNCTIONAL DISCOVERY: Binding synchronously surfaces port conflicts from Start
// instead of from a background goroutine
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.group != nil {
		return errors.New("application already started")
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	if err := app.eventHub.Start(groupCtx); err != nil {
		cancel()
		_ = listener.Close()
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	group.Go(func() error {
		return app.messageRouter.StartCleanup(groupCtx, rateLimiterCleanupInterval)
	})
	group.Go(func() error {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	app.listener = listener
	app.group = group
	app.cancel = cancel
	slog.Info("agiletools started", "addr", listener.Addr().String())
	return nil
}

// Run starts the application and blocks until ctx is cancelled or a component fails,
// then shuts down within shutdownTimeout
func (app *Application) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- app.group.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-done:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Stop gracefully shuts down the application; later calls return the first result
// Reverse dependency order: HTTP → streams → Hub → Database → Telemetry
func (app *Application) Stop(ctx context.Context) error {
	app.stopOnce.Do(func() {
		app.stopErr = app.stop(ctx)
	})
	return app.stopErr
}

func (app *Application) stop(ctx context.Context) error {
	app.mu.Lock()
	group, cancel := app.group, app.cancel
	app.group, app.cancel = nil, nil
	app.mu.Unlock()

	slog.Info("shutting down agiletools")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// Hijacked stream connections are not tracked by http.Server
	if closed := app.registry.CloseAll(); closed > 0 {
		slog.Info("closed stream connections", "count", closed)
	}

	if cancel != nil {
		cancel()
	}
	if err := app.eventHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("event hub shutdown: %w", err))
	}
	if group != nil {
		if err := group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}
	if err := app.shutdownTrace(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}

	slog.Info("agiletools shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listener address once started, else the configured one
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Sessions exposes the session manager for embedding and tests
func (app *Application) Sessions() *session.Manager {
	return app.sessionManager
}
