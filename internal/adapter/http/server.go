// Package http is the REST and server-sent-events transport.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/fleet"
	"github.com/couchcryptid/minesafe-service/internal/tracking"
)

// NodeService manages safety nodes and their event logs.
type NodeService interface {
	CreateNode(ctx context.Context, tenantID, name string, at domain.MapPoint) (domain.SafetyNode, error)
	Node(ctx context.Context, tenantID, nodeID string) (domain.SafetyNode, error)
	Nodes(ctx context.Context, tenantID string) ([]domain.SafetyNode, error)
	Append(ctx context.Context, tenantID, nodeID string, reading domain.SensorReading) (domain.ClassifiedEvent, error)
}

// VehicleService manages the tenant's vehicles.
type VehicleService interface {
	Register(ctx context.Context, tenantID string, in fleet.Registration) (domain.Vehicle, error)
	List(ctx context.Context, tenantID string) ([]domain.Vehicle, error)
	UpdateLocation(ctx context.Context, tenantID, registration string, loc domain.LatLng) (domain.Vehicle, error)
}

// RouteService starts live tracking sessions and answers one-shot route queries.
type RouteService interface {
	Start(ctx context.Context, req tracking.Request) (*tracking.Session, error)
	Snapshot(ctx context.Context, req tracking.Request) (tracking.Update, error)
}

// Deps are the collaborators the transport dispatches to.
type Deps struct {
	Nodes    NodeService
	Vehicles VehicleService
	Routes   RouteService
	Places   domain.PlaceLookup
	Ready    sharedobs.ReadinessChecker
}

// Server exposes the API plus health, readiness and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger

	// streams is cancelled on shutdown so open tracking streams end instead
	// of holding their connections until the shutdown deadline.
	streams     context.Context
	stopStreams context.CancelFunc
}

// NewServer creates an HTTP server with the API routes and /healthz, /readyz
// and /metrics.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Streams clear their own write deadline.
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.httpServer.RegisterOnShutdown(s.stopStreams)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/nodes", s.tenant(s.handleCreateNode))
	mux.HandleFunc("GET /v1/nodes", s.tenant(s.handleListNodes))
	mux.HandleFunc("GET /v1/nodes/{nodeID}", s.tenant(s.handleGetNode))
	mux.HandleFunc("POST /v1/nodes/{nodeID}/events", s.tenant(s.handleAppendEvent))

	mux.HandleFunc("POST /v1/vehicles", s.tenant(s.handleRegisterVehicle))
	mux.HandleFunc("GET /v1/vehicles", s.tenant(s.handleListVehicles))
	mux.HandleFunc("PUT /v1/vehicles/{reg}/location", s.tenant(s.handleUpdateLocation))

	mux.HandleFunc("GET /v1/places/{placeID}", s.tenant(s.handlePlace))
	mux.HandleFunc("POST /v1/directions", s.tenant(s.handleDirections))
	mux.HandleFunc("GET /v1/track/stream/{reg}", s.tenant(s.handleStream))

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

// Readiness combines several checkers; the first failure wins.
type Readiness []sharedobs.ReadinessChecker

func (rs Readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range rs {
		if c == nil {
			continue
		}
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
