// Package server exposes the provider cache over HTTP. Every handler
// resolves a connection id to a descriptor, obtains a connected provider
// from the cache and maps failures to status codes by error kind.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/logger"
	"github.com/koustreak/dblens/internal/monitoring"
)

// Config carries everything the server needs.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Connections []database.Descriptor
	Defaults    database.Options
	Monitoring  monitoring.Options

	Factory *database.Factory
	Cache   *database.Cache

	// Archiver is optional. Without it the snapshot endpoints answer 404.
	Archiver *monitoring.Archiver

	Logger *logger.Logger
}

type Server struct {
	cfg         Config
	connections map[string]database.Descriptor
	log         *logger.Logger
	router      chi.Router
	http        *http.Server
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	if cfg.Factory == nil {
		cfg.Factory = database.NewFactory()
	}
	if cfg.Cache == nil {
		cfg.Cache = database.NewCache(cfg.Factory, log)
	}

	conns := make(map[string]database.Descriptor, len(cfg.Connections))
	for _, d := range cfg.Connections {
		conns[d.ID] = d
	}

	s := &Server{
		cfg:         cfg,
		connections: conns,
		log:         log.With().Str("component", "http").Logger(),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/types", s.handleTypes)
		r.Get("/cache", s.handleCacheStats)
		r.Get("/connections", s.handleListConnections)

		r.Route("/connections/{id}", func(r chi.Router) {
			r.Delete("/", s.handleDisconnect)
			r.Post("/query", s.handleQuery)
			r.Get("/schema", s.handleSchema)
			r.Get("/health", s.handleHealth)
			r.Post("/maintenance", s.handleMaintenance)
			r.Get("/monitoring", s.handleMonitoring)
			r.Get("/tables/{table}/preview", s.handlePreview)
			r.Get("/snapshots", s.handleListSnapshots)
			r.Get("/snapshots/*", s.handleGetSnapshot)
		})
	})
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// disconnects every cached provider.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("shutting down")
	err := s.http.Shutdown(shutdownCtx)
	s.cfg.Cache.ClearAll(shutdownCtx)
	return err
}
