// Package api exposes the clustering engine over HTTP for the dashboard.
//
// Routes live under /api/v1/owners/{ownerRef}/clusters/{date}; the probe and
// metrics endpoints sit at the root. Every clustering operation runs under
// the configured per-operation time budget, and engine sentinel errors map
// onto HTTP status codes (timeout 504, invalid input 400, unknown cluster or
// unclustered day 404).
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/palaverhq/palaver/internal/cluster"
	"github.com/palaverhq/palaver/internal/health"
	"github.com/palaverhq/palaver/internal/observe"
)

// defaultOpTimeout bounds a clustering operation when the config leaves
// server.cluster_timeout unset.
const defaultOpTimeout = 5 * time.Minute

// Engine is the clustering surface the server fronts. *cluster.Engine
// satisfies it; tests substitute a stub.
type Engine interface {
	Clusters(ctx context.Context, ownerRef, date string) (*cluster.Result, error)
	ClusterFull(ctx context.Context, ownerRef, date string) (*cluster.Result, error)
	ClusterNew(ctx context.Context, ownerRef, date string, exclude []string) (*cluster.Result, error)
	ClusterSubset(ctx context.Context, ownerRef, date string, transcriptIDs []string) (*cluster.Result, error)
	MergeClusters(ctx context.Context, ownerRef, date string, clusterIDs []string) (*cluster.Result, error)
	RenameCluster(ctx context.Context, ownerRef, date, clusterID, title string) (*cluster.Result, error)
	DeleteCluster(ctx context.Context, ownerRef, date, clusterID string) (*cluster.Result, error)
	ReclusterAll(ctx context.Context, ownerRef, date string) (*cluster.Result, error)
}

var _ Engine = (*cluster.Engine)(nil)

// Server is the HTTP front of the clustering service.
type Server struct {
	engine    Engine
	router    chi.Router
	http      *http.Server
	opTimeout time.Duration
}

// NewServer builds the router and wraps it in an [http.Server] listening on
// addr. checks may be nil when no probes are wanted (tests); opTimeout <= 0
// selects the default budget.
func NewServer(addr string, eng Engine, checks *health.Handler, m *observe.Metrics, opTimeout time.Duration) *Server {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	s := &Server{
		engine:    eng,
		opTimeout: opTimeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(observe.Middleware(m))

	if checks != nil {
		checks.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/owners/{ownerRef}/clusters/{date}", func(r chi.Router) {
		r.Get("/", s.handleClusters)
		r.Post("/full", s.handleFull)
		r.Post("/incremental", s.handleIncremental)
		r.Post("/subset", s.handleSubset)
		r.Post("/merge", s.handleMerge)
		r.Post("/recluster", s.handleRecluster)
		r.Patch("/{clusterID}", s.handleRename)
		r.Delete("/{clusterID}", s.handleDelete)
	})

	s.router = r
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until [Server.Shutdown] is called or the listener fails.
func (s *Server) Start() error {
	slog.Info("starting HTTP API", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestID tags every request and response with an id for log correlation.
// An inbound X-Request-ID is honoured so the dashboard can thread its own.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
