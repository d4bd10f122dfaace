package http

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// SaveResultSubscriber streams save outcomes to event clients
type SaveResultSubscriber interface {
	Subscribe(buffer int) (<-chan *domain.SaveResult, func())
}

// PostStateSubscriber streams snapshots of one post to event clients
type PostStateSubscriber interface {
	Subscribe(postID string, buffer int) (<-chan *domain.PostSnapshot, func())
}

// RefreshQueue schedules background post refreshes
type RefreshQueue interface {
	Enqueue(postID string) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// closing is closed on shutdown to end event streams
	closing     chan struct{}
	closingOnce sync.Once

	// Services
	authService        driving.AuthService
	saveService        driving.SaveService
	connectService     driving.ConnectService
	interactionService driving.InteractionService

	// Infrastructure
	saveEvents     SaveResultSubscriber // optional
	postEvents     PostStateSubscriber  // optional
	refreshQueue   RefreshQueue         // optional; refreshes run inline without it
	metricsHandler http.Handler         // optional
	db             Pinger               // optional
	redisClient    Pinger               // optional
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// Dependencies are the services and infrastructure the server exposes.
type Dependencies struct {
	Auth         driving.AuthService
	Saves        driving.SaveService
	Connect      driving.ConnectService
	Interactions driving.InteractionService

	SaveEvents   SaveResultSubscriber
	PostEvents   PostStateSubscriber
	RefreshQueue RefreshQueue
	Metrics      http.Handler
	DB           Pinger
	Redis        Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:             http.NewServeMux(),
		closing:            make(chan struct{}),
		version:            cfg.Version,
		logger:             logger,
		authService:        deps.Auth,
		saveService:        deps.Saves,
		connectService:     deps.Connect,
		interactionService: deps.Interactions,
		saveEvents:         deps.SaveEvents,
		postEvents:         deps.PostEvents,
		refreshQueue:       deps.RefreshQueue,
		metricsHandler:     deps.Metrics,
		db:                 deps.DB,
		redisClient:        deps.Redis,
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	handler = NewLoggingMiddleware(logger).Handler(handler)
	if len(cfg.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	}
	handler = NewRecoveryMiddleware(logger).Handler(handler)
	handler = NewRequestIDMiddleware().Handler(handler)

	// WriteTimeout is lifted per request on event streams
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(func() {
		s.closingOnce.Do(func() { close(s.closing) })
	})

	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)
	scoped := func(scope string, h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(authMiddleware.RequireScope(scope)(h))
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	if s.metricsHandler != nil {
		s.router.Handle("GET /metrics", s.metricsHandler)
	}

	// Saves
	s.router.Handle("POST /api/v1/saves", scoped(domain.ScopeSave, s.handleSave))
	s.router.Handle("GET /api/v1/saves/events", scoped(domain.ScopeSave, s.handleSaveEvents))

	// Service registry
	s.router.Handle("GET /api/v1/services", scoped(domain.ScopeServices, s.handleListServices))
	s.router.Handle("PATCH /api/v1/services/{id}", scoped(domain.ScopeServices, s.handleUpdateService))
	s.router.Handle("DELETE /api/v1/services/{id}", scoped(domain.ScopeServices, s.handleRemoveService))
	s.router.Handle("POST /api/v1/services/{id}/primary", scoped(domain.ScopeServices, s.handleSetPrimary))
	s.router.Handle("POST /api/v1/services/{id}/authenticate", scoped(domain.ScopeServices, s.handleReauthenticate))
	s.router.Handle("POST /api/v1/services/reload", scoped(domain.ScopeServices, s.handleReloadServices))

	// Connect flows
	s.router.Handle("POST /api/v1/connect/pocket", scoped(domain.ScopeServices, s.handleBeginPocket))
	s.router.Handle("POST /api/v1/connect/pocket/complete", scoped(domain.ScopeServices, s.handleCompletePocket))
	s.router.Handle("POST /api/v1/connect/instapaper", scoped(domain.ScopeServices, s.handleConnectInstapaper))
	s.router.Handle("POST /api/v1/connect/omnivore", scoped(domain.ScopeServices, s.handleConnectOmnivore))
	s.router.Handle("POST /api/v1/connect/readwise", scoped(domain.ScopeServices, s.handleConnectReadwise))
	s.router.Handle("POST /api/v1/connect/raindrop", scoped(domain.ScopeServices, s.handleBeginRaindrop))
	// Callbacks are public - the provider redirects the browser here and the
	// single-use state authenticates the request
	s.router.HandleFunc("GET /api/v1/connect/pocket/callback", s.handlePocketCallback)
	s.router.HandleFunc("GET /api/v1/connect/raindrop/callback", s.handleRaindropCallback)

	// Post interactions
	s.router.Handle("POST /api/v1/posts/{id}/refresh", scoped(domain.ScopePosts, s.handleRefreshPost))
	s.router.Handle("GET /api/v1/posts/{id}/busy", scoped(domain.ScopePosts, s.handlePostBusy))
	s.router.Handle("GET /api/v1/posts/{id}/events", scoped(domain.ScopePosts, s.handlePostEvents))
	s.router.Handle("POST /api/v1/posts/{id}/{kind}", scoped(domain.ScopePosts, s.handleToggle))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
