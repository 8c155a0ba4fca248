package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/fleet"
	"github.com/couchcryptid/minesafe-service/internal/tracking"
)

type createNodeRequest struct {
	Name        string          `json:"name"`
	Coordinates domain.MapPoint `json:"coordinates"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req createNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	node, err := s.deps.Nodes.CreateNode(r.Context(), tenantID, req.Name, req.Coordinates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request, tenantID string) {
	nodes, err := s.deps.Nodes.Nodes(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request, tenantID string) {
	node, err := s.deps.Nodes.Node(r.Context(), tenantID, r.PathValue("nodeID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type appendEventRequest struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value"`
}

type appendEventResponse struct {
	NodeID string                 `json:"node_id"`
	Event  domain.ClassifiedEvent `json:"event"`
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req appendEventRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Value == nil {
		s.writeError(w, r, fmt.Errorf("%w: value is required", domain.ErrValidation))
		return
	}

	nodeID := r.PathValue("nodeID")
	event, err := s.deps.Nodes.Append(r.Context(), tenantID, nodeID, domain.SensorReading{
		NodeType: domain.NodeType(req.Type),
		Value:    *req.Value,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appendEventResponse{NodeID: nodeID, Event: event})
}

func (s *Server) handleRegisterVehicle(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req fleet.Registration
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.deps.Vehicles.Register(r.Context(), tenantID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request, tenantID string) {
	vehicles, err := s.deps.Vehicles.List(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request, tenantID string) {
	var loc domain.LatLng
	if err := decodeJSON(r, &loc); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.deps.Vehicles.UpdateLocation(r.Context(), tenantID, r.PathValue("reg"), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request, _ string) {
	if s.deps.Places == nil {
		s.writeError(w, r, fmt.Errorf("%w: place lookup is not configured", domain.ErrUpstream))
		return
	}
	place, err := s.deps.Places.PlaceDetails(r.Context(), r.PathValue("placeID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

// handleDirections answers one route query. The body carries a vehicle
// reference (registrationNumber) or origin coordinates, plus a destination
// under any accepted alias.
func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request, tenantID string) {
	fields := domain.Fields{}
	if err := decodeJSON(r, &fields); err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, _ := fields["registrationNumber"].(string)

	u, err := s.deps.Routes.Snapshot(r.Context(), tracking.Request{
		TenantID:     tenantID,
		Registration: reg,
		Fields:       fields,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// parseInterval reads an optional interval in whole or fractional seconds.
func parseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 || secs > 3600 {
		return 0, fmt.Errorf("%w: interval must be a positive number of seconds", domain.ErrValidation)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
