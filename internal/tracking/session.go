package tracking

import (
	"context"
	"time"

	"github.com/couchcryptid/minesafe-service/internal/domain"
)

const (
	UpdateTypeRoute = "update"
	UpdateTypeError = "error"
)

// Update is one payload pushed to the subscriber.
type Update struct {
	Type            string             `json:"type"`
	VehiclePosition *domain.LatLng     `json:"vehiclePosition,omitempty"`
	Destination     domain.Destination `json:"destination"`
	Polyline        string             `json:"polyline,omitempty"`
	DistanceMeters  *int               `json:"distanceMeters,omitempty"`
	DurationSeconds *int               `json:"durationSeconds,omitempty"`
	ETAText         string             `json:"etaText,omitempty"`
	DistanceText    string             `json:"distanceText,omitempty"`
	Bounds          *domain.Bounds     `json:"bounds,omitempty"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	Error           *TickError         `json:"error,omitempty"`
}

// TickError describes a failed tick.
type TickError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Sink receives updates. A Send error is treated as a subscriber disconnect.
type Sink interface {
	Send(ctx context.Context, u Update) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, u Update) error

func (f SinkFunc) Send(ctx context.Context, u Update) error { return f(ctx, u) }

// Session is one live tracking stream. It holds no state shared with other
// sessions.
type Session struct {
	tracker      *Tracker
	tenantID     string
	registration string
	origin       domain.LatLng
	destination  domain.Destination
	interval     time.Duration
}

func (s *Session) Interval() time.Duration { return s.interval }

func (s *Session) Destination() domain.Destination { return s.destination }

// Run pushes a priming update, then one update per interval, until ctx is
// cancelled or the sink fails. It returns nil on cancellation.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	t := s.tracker
	t.metrics.TrackingSessions.Inc()
	defer t.metrics.TrackingSessions.Dec()

	log := t.logger.With("tenant_id", s.tenantID, "registration", s.registration)
	log.Info("tracking session started", "interval", s.interval.String(), "destination", s.destination.Location.String())
	defer log.Info("tracking session stopped")

	if err := s.emit(ctx, sink); err != nil {
		return ignoreCancel(ctx, err)
	}

	ticker := t.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := s.emit(ctx, sink); err != nil {
				return ignoreCancel(ctx, err)
			}
		}
	}
}

// emit runs one tick and sends its result. Nothing is sent once ctx is done.
func (s *Session) emit(ctx context.Context, sink Sink) error {
	u := s.tick(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return sink.Send(ctx, u)
}

func (s *Session) tick(ctx context.Context) Update {
	pos, route, err := s.fetch(ctx)
	if err != nil {
		s.tracker.metrics.TrackingTicks.WithLabelValues("error").Inc()
		if ctx.Err() == nil {
			s.tracker.logger.Warn("tracking tick failed",
				"tenant_id", s.tenantID,
				"registration", s.registration,
				"error", err,
			)
		}
		return s.errorUpdate(err)
	}
	s.tracker.metrics.TrackingTicks.WithLabelValues("success").Inc()
	return s.update(pos, route)
}

// fetch re-reads the vehicle position within the session's tenant and asks
// the route finder for a fresh route.
func (s *Session) fetch(ctx context.Context) (domain.LatLng, domain.RouteInfo, error) {
	pos := s.origin
	if s.registration != "" {
		v, err := s.tracker.vehicles.Vehicle(ctx, s.tenantID, s.registration)
		if err != nil {
			return domain.LatLng{}, domain.RouteInfo{}, err
		}
		pos = v.CurrentLocation
	}
	route, err := s.tracker.routes.Directions(ctx, pos, s.destination.Location)
	if err != nil {
		return pos, domain.RouteInfo{}, err
	}
	return pos, route, nil
}

func (s *Session) update(pos domain.LatLng, route domain.RouteInfo) Update {
	distance := route.DistanceMeters
	duration := route.DurationSeconds
	bounds := route.Bounds
	return Update{
		Type:            UpdateTypeRoute,
		VehiclePosition: &pos,
		Destination:     s.destination,
		Polyline:        route.Polyline,
		DistanceMeters:  &distance,
		DurationSeconds: &duration,
		ETAText:         route.DurationText,
		DistanceText:    route.DistanceText,
		Bounds:          &bounds,
		UpdatedAt:       s.tracker.clock.Now().UTC(),
	}
}

func (s *Session) errorUpdate(err error) Update {
	return Update{
		Type:        UpdateTypeError,
		Destination: s.destination,
		UpdatedAt:   s.tracker.clock.Now().UTC(),
		Error:       &TickError{Kind: domain.Kind(err), Message: err.Error()},
	}
}

// ignoreCancel reports a cancelled session as a clean stop.
func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
