// package server contains middleware & handlers for the HubSpot → Marketing Cloud migration web service
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/repositories"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
	"github.com/desertthunder/hsmc/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, panic recovery, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the migration service.
// Implementations handle specific endpoints (dashboard, OAuth).
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

// Migrator runs one migration.
type Migrator interface {
	Run(ctx context.Context, assetType models.AssetType, req *models.MigrationRequest, progress chan<- tasks.ProgressUpdate) (*models.RunResult, error)
}

// Credentials resolves and exchanges credentials for both platforms.
type Credentials interface {
	CodeExchanger
	SFMCCredentialsFor(ctx context.Context, req *models.MigrationRequest) (models.SFMCCredentials, bool, error)
	ExchangeSFMC(ctx context.Context, creds models.SFMCCredentials) (*models.Credential, error)
}

// Diagnostics are the Marketing Cloud helpers behind /api/sfmc.
type Diagnostics interface {
	ListFolders(ctx context.Context, kind services.FolderKind, parentID int64) ([]models.Folder, error)
	TestContentBlock(ctx context.Context, folderID int64) (*models.DestinationAsset, error)
}

// Options wires a [Server].
type Options struct {
	Config      *shared.Config
	Credentials Credentials
	Engine      Migrator
	Store       repositories.TokenStore // nil disables persistence
	Dashboard   Handler                 // nil leaves GET / unrouted
	HTTPClient  *http.Client
	Logger      *log.Logger

	// NewDiagnostics replaces the HTTP-backed Marketing Cloud client.
	NewDiagnostics func(cred *models.Credential) Diagnostics
}

// Server is the HTTP presentation layer: dashboard, OAuth callback and the JSON API.
type Server struct {
	router *BasicRouter
	opts   Options
	oauth  *OAuthHandler
	logger *log.Logger
}

// New builds a server with all routes registered.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.NewDiagnostics == nil {
		opts.NewDiagnostics = func(cred *models.Credential) Diagnostics {
			return services.NewSFMCService(cred, opts.HTTPClient, nil, opts.Logger)
		}
	}

	logger := shared.WithLogger(opts.Logger, "component", "server")
	s := &Server{router: NewBasicRouter(), opts: opts, logger: logger}

	var store TokenWriter
	if opts.Store != nil {
		store = opts.Store
	}
	s.oauth = NewOAuthHandler(opts.Credentials, store, opts.Config.Server.DashboardURL, opts.Logger)

	s.router.Use(Recover(logger), Logging(logger))
	s.routes()
	return s
}

func (s *Server) routes() {
	if s.opts.Dashboard != nil {
		s.router.Handler(s.opts.Dashboard)
	}
	s.router.Handler(s.oauth)
	s.router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(s.handleHealth))
	s.router.Handle(http.MethodPost, "/api/auth/sfmc", http.HandlerFunc(s.handleSFMCAuth))
	s.router.Handle(http.MethodPost, "/api/migrate/{type}", http.HandlerFunc(s.handleMigrate))
	s.router.Handle(http.MethodPost, "/api/sfmc/folders", s.handleFolders(services.FolderData))
	s.router.Handle(http.MethodPost, "/api/sfmc/email-folders", s.handleFolders(services.FolderAsset))
	s.router.Handle(http.MethodPost, "/api/sfmc/test-content-block", http.HandlerFunc(s.handleTestContentBlock))
}

// OAuth exposes the callback handler so callers can wait on [OAuthHandler.Result].
func (s *Server) OAuth() *OAuthHandler {
	return s.oauth
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Config.Address(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
