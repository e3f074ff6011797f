// Package server exposes a read-only HTTP surface over a running scrape:
// liveness, per-group progress and Prometheus metrics. It never mutates
// scraper state.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GroupStatus is one group's progress snapshot.
type GroupStatus struct {
	Group        string    `json:"group"`
	State        string    `json:"state"`
	PagesVisited int       `json:"pagesVisited"`
	Emitted      int       `json:"emitted"`
	Dropped      int       `json:"dropped"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Tracker holds the run's live status for the /status endpoint. Safe for
// concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	groups    map[string]GroupStatus
}

func NewTracker(runID string) *Tracker {
	return &Tracker{
		runID:     runID,
		startedAt: time.Now().UTC(),
		groups:    make(map[string]GroupStatus),
	}
}

// Update replaces a group's status.
func (t *Tracker) Update(status GroupStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status.UpdatedAt = time.Now().UTC()
	t.groups[status.Group] = status
}

type snapshot struct {
	RunID     string                 `json:"runId"`
	StartedAt time.Time              `json:"startedAt"`
	Groups    map[string]GroupStatus `json:"groups"`
}

func (t *Tracker) snapshot() snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	groups := make(map[string]GroupStatus, len(t.groups))
	for k, v := range t.groups {
		groups[k] = v
	}
	return snapshot{
		RunID:     t.runID,
		StartedAt: t.startedAt,
		Groups:    groups,
	}
}

// Server wraps the HTTP listener.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func New(port string, tracker *Tracker, registry *prometheus.Registry) *Server {
	logger := slog.Default().With("component", "server")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, tracker.snapshot())
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}
