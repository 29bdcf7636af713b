// package server contains routing, middleware, and handlers for the queuetify HTTP and WebSocket service
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/hub"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/services"
	"github.com/gorilla/websocket"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultClientTimeout     = 10 * time.Second
	shutdownTimeout          = 10 * time.Second
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the session service.
// Implementations handle a group of related endpoints (OAuth, session membership).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Hub is the slice of [hub.Hub] the transport talks to.
type Hub interface {
	Connect(sessionID, connectionID string, d hub.Delivery) error
	Disconnect(sessionID, connectionID string) error
	Relay(req models.Request) error
	Kill(sessionID string) error
	Stats(ctx context.Context) (hub.Stats, error)
}

// Authenticator runs the Spotify authorization code flow. [services.SpotifyService] implements it.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*models.Credentials, error)
	UserProfile(ctx context.Context, creds models.Credentials) (*services.SpotifyUser, error)
}

// Options tunes a [Server]. Zero durations take the package defaults.
type Options struct {
	HeartbeatInterval time.Duration // HeartbeatInterval is how often each connection is pinged
	ClientTimeout     time.Duration // ClientTimeout disconnects a connection that has been silent this long
	SecureCookies     bool          // SecureCookies marks session cookies Secure
	Logger            *log.Logger
}

// Server wires the router, the session handlers, and the WebSocket transport.
type Server struct {
	hub      Hub
	store    models.Store
	auth     Authenticator
	opts     Options
	logger   *log.Logger
	upgrader websocket.Upgrader
	router   *BasicRouter
}

// New builds a Server with every route registered.
func New(h Hub, store models.Store, auth Authenticator, opts Options) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = DefaultClientTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		hub:    h,
		store:  store,
		auth:   auth,
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		router: NewBasicRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(RequestLogger(s.logger))

	s.router.Handle(http.MethodGet, "/health", http.HandlerFunc(s.handleHealth))
	s.router.Handler(NewOAuthHandler(s.auth, s.store, s.opts.SecureCookies, s.logger))
	s.router.Handle(http.MethodGet, "/join/{id}", http.HandlerFunc(s.handleJoin))
	s.router.Handle(http.MethodPost, "/session/{id}/kill", http.HandlerFunc(s.handleKill))
	s.router.Handle(http.MethodGet, "/session/{id}/ws", http.HandlerFunc(s.handleWebSocket))
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
