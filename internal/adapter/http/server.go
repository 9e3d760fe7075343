package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/selector"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DomainLoader triggers and clears domain loads.
type DomainLoader interface {
	Load(ctx context.Context, d domain.DataDomain) error
	Clear(d domain.DataDomain) error
	Reset() error
}

// StatusReader reports domain state and published data.
type StatusReader interface {
	Snapshot() []domain.DomainStatus
	Status(d domain.DataDomain) domain.DomainStatus
	Data(d domain.DataDomain) (any, bool, error)
}

// TopologyGetter returns the cached map topology.
type TopologyGetter interface {
	Get(ctx context.Context) (domain.Topology, error)
}

// Dependencies are the collaborators the API reads from.
type Dependencies struct {
	Ready    sharedobs.ReadinessChecker
	Loader   DomainLoader
	Status   StatusReader
	Topology TopologyGetter
	Selector *selector.Selector
}

// Server exposes health, readiness, metrics, and the data API.
type Server struct {
	httpServer *http.Server
	deps       Dependencies
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /api/v1 routes.
func NewServer(addr string, deps Dependencies, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/domains", s.handleListDomains)
	mux.HandleFunc("DELETE /api/v1/domains", s.handleResetDomains)
	mux.HandleFunc("GET /api/v1/domains/{domain}", s.handleGetDomain)
	mux.HandleFunc("POST /api/v1/domains/{domain}/load", s.handleLoadDomain)
	mux.HandleFunc("DELETE /api/v1/domains/{domain}", s.handleClearDomain)

	mux.HandleFunc("GET /api/v1/topology", s.handleTopology)
	mux.HandleFunc("GET /api/v1/seasons", s.handleSeasons)
	mux.HandleFunc("GET /api/v1/locations", s.handleLocations)
	mux.HandleFunc("GET /api/v1/thresholds", s.handleThresholds)
	mux.HandleFunc("GET /api/v1/ground-truth", s.handleGroundTruth)
	mux.HandleFunc("GET /api/v1/historical", s.handleHistorical)
	mux.HandleFunc("GET /api/v1/predictions", s.handlePredictions)
	mux.HandleFunc("GET /api/v1/nowcast", s.handleNowcast)
	mux.HandleFunc("GET /api/v1/evaluations/overview", s.handleSeasonOverview)
	mux.HandleFunc("GET /api/v1/evaluations/state-map", s.handleStateMap)
	mux.HandleFunc("GET /api/v1/evaluations/scores", s.handleScores)
	mux.HandleFunc("GET /api/v1/evaluations/boxplot", s.handleBoxplot)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
