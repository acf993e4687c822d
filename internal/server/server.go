// Package server exposes the dashboard HTTP API over the distribution
// service: snapshot reads, status, manual refresh, and an SSE stream that
// relays every accepted update to connected browsers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clipfeed/admin-dashboard/internal/config"
	"github.com/clipfeed/admin-dashboard/internal/distributor"
	"github.com/clipfeed/admin-dashboard/internal/snapshot"
)

// Distributor is the narrow slice of the distribution service the HTTP
// layer needs. The concrete service is injected at startup.
type Distributor interface {
	Subscribe(label string, fn distributor.Callback) string
	Unsubscribe(id string) bool
	CurrentSnapshot() snapshot.Snapshot
	DomainValue(key string) (snapshot.Snapshot, bool)
	Refresh()
	Status() distributor.Status
}

type Server struct {
	dist           Distributor
	config         config.ServerConfig
	logger         *zap.Logger
	refreshLimiter *rate.Limiter
}

func NewServer(dist Distributor, cfg config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		dist:           dist,
		config:         cfg,
		logger:         logger,
		refreshLimiter: rate.NewLimiter(rate.Limit(cfg.RefreshPerSecond), cfg.RefreshBurst),
	}
}

func NewRouter(s *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Route("/api/v1", func(api chi.Router) {
		// SSE must not run behind the compressing writer.
		api.Get("/events", s.handleEvents)

		api.Group(func(data chi.Router) {
			data.Use(middleware.Compress(5))
			data.Get("/snapshot", s.handleSnapshot)
			data.Get("/snapshot/{domain}", s.handleDomain)
			data.Get("/status", s.handleStatus)
			data.Post("/refresh", s.handleRefresh)
		})
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
			)
			next.ServeHTTP(w, r)
		})
	}
}
