// Package tracking streams live route and ETA updates for a vehicle heading
// to a destination.
//
// A Session is started once (inputs validated, destination resolved) and then
// driven by Run: one priming update immediately, then one update per interval
// until the context is cancelled. Ticks within a session never overlap. A
// failed tick produces an in-band error update and the session keeps going.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/observability"
)

// RawRegistration marks a request that carries vehicle coordinates instead
// of a registration reference.
const RawRegistration = "-"

// minInterval bounds how often a session may call the route finder.
const minInterval = 2 * time.Second

// VehicleLookup finds a vehicle by registration within one tenant.
type VehicleLookup interface {
	Vehicle(ctx context.Context, tenantID, registration string) (domain.Vehicle, error)
}

// Config holds the tick cadence.
type Config struct {
	Interval    time.Duration
	MinInterval time.Duration
}

// Tracker starts tracking sessions.
type Tracker struct {
	routes   domain.RouteFinder
	places   domain.PlaceLookup
	vehicles VehicleLookup
	clock    clockwork.Clock
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewTracker creates a Tracker. A nil clock uses real time. MinInterval is
// never below two seconds.
func NewTracker(routes domain.RouteFinder, places domain.PlaceLookup, vehicles VehicleLookup, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg.MinInterval = max(cfg.MinInterval, minInterval)
	if cfg.Interval < cfg.MinInterval {
		cfg.Interval = cfg.MinInterval
	}
	return &Tracker{
		routes:   routes,
		places:   places,
		vehicles: vehicles,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Request describes what to track. Fields carries the destination (and, for
// RawRegistration, the vehicle origin) under any of the accepted aliases.
type Request struct {
	TenantID     string
	Registration string
	Fields       domain.Fields
	Interval     time.Duration
}

// Start validates the request and resolves the destination once.
func (t *Tracker) Start(ctx context.Context, req Request) (*Session, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}

	reg := strings.TrimSpace(req.Registration)
	if reg == RawRegistration {
		reg = ""
	}
	origin, hasOrigin, err := domain.ResolveOrigin(req.Fields)
	if err != nil {
		return nil, err
	}
	switch {
	case reg != "":
		// Fail fast on an unknown vehicle rather than streaming errors forever.
		if _, err := t.vehicles.Vehicle(ctx, req.TenantID, reg); err != nil {
			return nil, err
		}
	case !hasOrigin:
		return nil, fmt.Errorf("%w: a vehicle registration or origin coordinates are required", domain.ErrValidation)
	}

	dest, err := domain.ResolveDestination(ctx, req.Fields, t.places)
	if err != nil {
		return nil, err
	}

	return &Session{
		tracker:      t,
		tenantID:     req.TenantID,
		registration: reg,
		origin:       origin,
		destination:  dest,
		interval:     t.clampInterval(req.Interval),
	}, nil
}

// Snapshot computes a single route update, returning failures as errors
// instead of in-band payloads.
func (t *Tracker) Snapshot(ctx context.Context, req Request) (Update, error) {
	s, err := t.Start(ctx, req)
	if err != nil {
		return Update{}, err
	}
	pos, route, err := s.fetch(ctx)
	if err != nil {
		return Update{}, err
	}
	return s.update(pos, route), nil
}

func (t *Tracker) clampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return t.cfg.Interval
	}
	if d < t.cfg.MinInterval {
		return t.cfg.MinInterval
	}
	return d
}
