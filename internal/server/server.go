// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects storage, services,
// handlers, middleware, and routes, and decides:
//   - Which backend serves each concern (SQLite, Disk or MinIO, Data API or keyless catalog)
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB         → AuthService, PlaylistService
//	  storage.Store     → UploadService
//	  catalog.Catalog   → (Redis cache) → SearchService
//	  services          → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/mixtape/internal/auth"
	"github.com/sakif/mixtape/internal/catalog"
	"github.com/sakif/mixtape/internal/config"
	"github.com/sakif/mixtape/internal/handler"
	"github.com/sakif/mixtape/internal/metrics"
	"github.com/sakif/mixtape/internal/middleware"
	sqliteRepo "github.com/sakif/mixtape/internal/repository/sqlite"
	"github.com/sakif/mixtape/internal/service"
	"github.com/sakif/mixtape/internal/storage"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the optional Redis client.
// Start closes both after the HTTP server has drained.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	redis  *redis.Client // nil when REDIS_URL is unset
}

// New creates a Server from the loaded configuration.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the database (sqlite.New), purge expired sessions
//  2. Pick the upload store and the video catalog
//  3. Create the services, then the handlers
//  4. Wire handlers to routes
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	return newServer(ctx, cfg, logger, auth.NewPasswordService())
}

// newServer lets tests pass a cheap bcrypt cost.
func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger, passwords *auth.PasswordService) (*Server, error) {
	// === CREATE DATABASE ===
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(ctx, passwords); err != nil {
		s.close() // clean up DB (and Redis) if wiring fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// newStore picks MinIO when an endpoint is configured, local disk otherwise.
func (s *Server) newStore(ctx context.Context) (storage.Store, error) {
	if s.config.MinIOEnabled() {
		s.logger.Info("audio storage: minio",
			slog.String("endpoint", s.config.MinIOEndpoint),
			slog.String("bucket", s.config.MinIOBucket),
		)
		return storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:  s.config.MinIOEndpoint,
			AccessKey: s.config.MinIOAccessKey,
			SecretKey: s.config.MinIOSecretKey,
			Bucket:    s.config.MinIOBucket,
			UseSSL:    s.config.MinIOUseSSL,
		}, s.logger)
	}

	s.logger.Info("audio storage: disk", slog.String("dir", s.config.UploadDir))
	return storage.NewDisk(s.config.UploadDir)
}

// newCatalog picks the Data API client when a key is configured and the
// keyless client otherwise, then puts the Redis cache in front of it.
//
// An unreachable Redis is not fatal: Cached treats every Redis error as a
// miss, so the server keeps answering from the catalog itself.
func (s *Server) newCatalog(ctx context.Context) (catalog.Catalog, error) {
	var c catalog.Catalog
	if s.config.YouTubeAPIKey != "" {
		s.logger.Info("video catalog: YouTube Data API", slog.Float64("rps", s.config.YouTubeRPS))
		c = catalog.NewYouTube(s.config.YouTubeAPIKey, s.config.YouTubeAPIURL, s.config.YouTubeRPS, nil, s.logger)
	} else {
		s.logger.Warn("YOUTUBE_API_KEY not set: search returns demo results")
		c = catalog.NewKeyless()
	}

	if s.config.RedisURL == "" {
		return c, nil
	}

	opt, err := redis.ParseURL(s.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	s.redis = redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.redis.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn("redis unreachable, catalog cache will miss until it is back",
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("catalog cache: redis", slog.Duration("ttl", s.config.SearchCacheTTL))
	return catalog.NewCached(c, s.redis, s.config.SearchCacheTTL, s.logger), nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                         → health check
//	GET    /metrics                         → Prometheus exposition
//	GET    /uploads/{name}                  → stored audio (Range aware)
//	GET    /auth/github/login|callback      → GitHub sign-in (when configured)
//	POST   /api/register|login|logout       → accounts and sessions
//	GET    /api/me                          → current user or null
//	*      /api/playlists/...               → playlists (auth required)
//	GET    /api/search, /api/videos/{id}    → video catalog (auth required)
//	GET    /*                               → static browser client
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique ID per request, picked up by the logger
//  2. RealIP: client IP from proxy headers
//  3. Logger + Metrics: wrap everything below, so they see the final status
//  4. Recoverer: turns a panic into a 500 that the logger still records
//  5. CORS: only when CORS_ORIGINS is set (the bundled client is same-origin)
func (s *Server) setupRoutes(ctx context.Context, passwords *auth.PasswordService) error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true, // the session lives in a cookie
			MaxAge:           300,
		}))
	}

	// === Backends ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	store, err := s.newStore(ctx)
	if err != nil {
		return fmt.Errorf("creating upload store: %w", err)
	}
	videos, err := s.newCatalog(ctx)
	if err != nil {
		return fmt.Errorf("creating video catalog: %w", err)
	}

	// === Services ===
	// DEPENDENCY CHAIN:
	//   s.db (sqlite.DB) implements every repository interface.
	//   Services receive the interfaces; handlers receive the services.
	authService := service.NewAuthService(s.db, s.db, tokens, passwords, s.logger)
	playlistService := service.NewPlaylistService(s.db, s.logger)
	uploadService := service.NewUploadService(playlistService, store, s.config.MaxUploadBytes, s.logger)
	searchService := service.NewSearchService(videos, s.logger)

	if n, err := authService.PurgeExpiredSessions(ctx); err != nil {
		s.logger.Warn("purging expired sessions failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Info("purged expired sessions", slog.Int64("count", n))
	}

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
	}

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, github, s.config.CookieSecure, s.logger)
	playlistHandler := handler.NewPlaylistHandler(playlistService, s.logger)
	uploadHandler := handler.NewUploadHandler(uploadService, s.config.MaxUploadBytes, s.logger)
	searchHandler := handler.NewSearchHandler(searchService, s.logger)

	// === Operational Routes ===
	metrics.Init()
	s.router.Get("/healthz", handler.HandleHealth(s.db, s.logger))
	s.router.Handle("/metrics", metrics.Handler())
	s.router.Get("/uploads/{name}", uploadHandler.HandleServe)

	// === OAuth Routes ===
	// Only registered when GitHub credentials are configured.
	if authHandler.GitHubEnabled() {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.logger.Info("GitHub sign-in enabled")
	}

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.With(auth.OptionalAuth(authService)).Get("/me", authHandler.HandleMe)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authService))

			r.Get("/search", searchHandler.HandleSearch)
			r.Get("/videos/{videoId}", searchHandler.HandleVideo)

			r.Route("/playlists", func(r chi.Router) {
				r.Get("/", playlistHandler.HandleList)
				r.Post("/", playlistHandler.HandleCreate)
				r.Get("/contains", playlistHandler.HandleContains)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", playlistHandler.HandleGet)
					r.Delete("/", playlistHandler.HandleDelete)

					r.Get("/items", playlistHandler.HandleItems)
					r.Post("/items", playlistHandler.HandleAddVideo)
					r.Patch("/items/{videoId}", playlistHandler.HandleRateVideo)
					r.Delete("/items/{videoId}", playlistHandler.HandleRemoveVideo)

					// "mp3" is the path older clients use.
					for _, prefix := range []string{"/audio", "/mp3"} {
						r.Post(prefix, uploadHandler.HandleUpload)
						r.Patch(prefix+"/{mp3Id}", playlistHandler.HandleRateAudio)
						r.Delete(prefix+"/{mp3Id}", playlistHandler.HandleRemoveAudio)
					}
				})
			})
		})
	})

	// === Static Files ===
	// The browser client. Registered last so every route above wins.
	s.router.Handle("/*", http.FileServer(http.Dir(s.config.PublicDir)))

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database (flushes WAL, releases the file lock) and Redis
func (s *Server) Start() error {
	defer s.close()

	// WriteTimeout is generous: streaming an upload back can take a while
	// on a slow connection.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("env", s.config.Env),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// close releases the database and Redis. Errors are logged; there is
// nothing left to do with them at shutdown.
func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("closing database", slog.String("error", err.Error()))
	}
}
