package domain

import (
	"context"
	"fmt"
	"math"
)

// LatLng is a canonical WGS-84 coordinate.
type LatLng struct {
	Lat float64 `json:"latitude" bson:"latitude"`
	Lng float64 `json:"longitude" bson:"longitude"`
}

// Validate rejects non-finite or out-of-range coordinates.
func (c LatLng) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: coordinate is not finite", ErrValidation)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: coordinate (%v,%v) out of range", ErrValidation, c.Lat, c.Lng)
	}
	return nil
}

// String formats the coordinate as "lat,lng", the form routing providers expect.
func (c LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Destination is a resolved tracking target.
type Destination struct {
	Location LatLng `json:"location"`
	Name     string `json:"name,omitempty"`
	PlaceID  string `json:"placeId,omitempty"`
}

// Place is the best match returned by a place-details lookup.
type Place struct {
	PlaceID  string `json:"placeId"`
	Name     string `json:"name"`
	Location LatLng `json:"location"`
}

// Bounds is the viewport enclosing a route.
type Bounds struct {
	Northeast LatLng `json:"northeast"`
	Southwest LatLng `json:"southwest"`
}

// RouteInfo is a single driving route between two coordinates.
type RouteInfo struct {
	Polyline        string `json:"polyline"`
	DistanceMeters  int    `json:"distanceMeters"`
	DistanceText    string `json:"distanceText,omitempty"`
	DurationSeconds int    `json:"durationSeconds"`
	DurationText    string `json:"durationText"`
	Bounds          Bounds `json:"bounds"`
}

// PlaceLookup resolves an opaque place reference into a coordinate.
type PlaceLookup interface {
	PlaceDetails(ctx context.Context, placeID string) (Place, error)
}

// RouteFinder produces a driving route between two coordinates. It returns
// ErrNoRoute when the provider succeeds without a usable route and an
// *UpstreamError when the provider reports failure.
type RouteFinder interface {
	Directions(ctx context.Context, origin, destination LatLng) (RouteInfo, error)
}
