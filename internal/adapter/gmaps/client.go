// Package gmaps implements place lookup and driving directions against the
// Google Maps web services.
package gmaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/observability"
)

const (
	methodPlaceDetails = "place_details"
	methodDirections   = "directions"

	statusOK = "OK"
)

// Config is injected at construction; the client never reads process state.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client implements domain.PlaceLookup and domain.RouteFinder.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a maps client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// PlaceDetails resolves a place reference into its best-match coordinate and name.
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (domain.Place, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {"geometry,name"},
		"key":      {c.apiKey},
	}

	var resp placeDetailsResponse
	if err := c.get(ctx, methodPlaceDetails, "/place/details/json", params, &resp); err != nil {
		return domain.Place{}, err
	}
	if resp.Status != statusOK {
		c.observe(methodPlaceDetails, "error")
		return domain.Place{}, &domain.UpstreamError{
			Service:    methodPlaceDetails,
			HTTPStatus: http.StatusOK,
			Status:     resp.Status,
			Message:    resp.ErrorMessage,
		}
	}
	if resp.Result.Geometry == nil || resp.Result.Geometry.Location == nil {
		c.observe(methodPlaceDetails, "empty")
		return domain.Place{}, &domain.UpstreamError{
			Service:    methodPlaceDetails,
			HTTPStatus: http.StatusOK,
			Status:     resp.Status,
			Message:    "place has no geometry",
		}
	}

	c.observe(methodPlaceDetails, "success")
	loc := resp.Result.Geometry.Location
	return domain.Place{
		PlaceID:  placeID,
		Name:     resp.Result.Name,
		Location: domain.LatLng{Lat: loc.Lat, Lng: loc.Lng},
	}, nil
}

// Directions fetches the first driving route between origin and destination.
func (c *Client) Directions(ctx context.Context, origin, destination domain.LatLng) (domain.RouteInfo, error) {
	params := url.Values{
		"origin":      {origin.String()},
		"destination": {destination.String()},
		"mode":        {"driving"},
		"key":         {c.apiKey},
	}

	var resp directionsResponse
	if err := c.get(ctx, methodDirections, "/directions/json", params, &resp); err != nil {
		return domain.RouteInfo{}, err
	}
	if resp.Status != statusOK {
		c.observe(methodDirections, "error")
		return domain.RouteInfo{}, &domain.UpstreamError{
			Service:    methodDirections,
			HTTPStatus: http.StatusOK,
			Status:     resp.Status,
			Message:    resp.ErrorMessage,
		}
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		c.observe(methodDirections, "empty")
		return domain.RouteInfo{}, fmt.Errorf("%w: from %s to %s", domain.ErrNoRoute, origin, destination)
	}

	c.observe(methodDirections, "success")
	route := resp.Routes[0]
	leg := route.Legs[0]
	return domain.RouteInfo{
		Polyline:        route.OverviewPolyline.Points,
		DistanceMeters:  leg.Distance.Value,
		DistanceText:    leg.Distance.Text,
		DurationSeconds: leg.Duration.Value,
		DurationText:    leg.Duration.Text,
		Bounds: domain.Bounds{
			Northeast: domain.LatLng{Lat: route.Bounds.Northeast.Lat, Lng: route.Bounds.Northeast.Lng},
			Southwest: domain.LatLng{Lat: route.Bounds.Southwest.Lat, Lng: route.Bounds.Southwest.Lng},
		},
	}, nil
}

func (c *Client) get(ctx context.Context, method, path string, params url.Values, out any) error {
	fullURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.MapsAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.observe(method, "error")
		c.logger.Warn("maps request failed", "method", method, "error", err)
		return &domain.UpstreamError{Service: method, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.observe(method, "error")
		return &domain.UpstreamError{
			Service:    method,
			HTTPStatus: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.observe(method, "error")
		return &domain.UpstreamError{Service: method, HTTPStatus: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

func (c *Client) observe(method, outcome string) {
	c.metrics.MapsRequests.WithLabelValues(method, outcome).Inc()
}

// Google Maps API response types.

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type placeDetailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Result       struct {
		Name     string `json:"name"`
		Geometry *struct {
			Location *latLng `json:"location"`
		} `json:"geometry"`
	} `json:"result"`
}

type textValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type directionsResponse struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Routes       []route `json:"routes"`
}

type route struct {
	OverviewPolyline struct {
		Points string `json:"points"`
	} `json:"overview_polyline"`
	Bounds struct {
		Northeast latLng `json:"northeast"`
		Southwest latLng `json:"southwest"`
	} `json:"bounds"`
	Legs []leg `json:"legs"`
}

type leg struct {
	Distance textValue `json:"distance"`
	Duration textValue `json:"duration"`
}
