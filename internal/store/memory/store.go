// Package memory is an in-process persistence collaborator. Data lives for
// the life of the process and is partitioned by tenant.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/minesafe-service/internal/domain"
)

type tenantData struct {
	nodes     map[string]*domain.SafetyNode
	nodeOrder []string

	vehicles     map[string]domain.Vehicle // keyed by domain.RegistrationKey
	vehicleOrder []string
}

// Store is a thread-safe tenant-scoped store for safety nodes and vehicles.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*tenantData
}

// New creates an empty Store.
func New() *Store {
	return &Store{tenants: make(map[string]*tenantData)}
}

// CheckReadiness always succeeds; the store has no remote dependency.
func (s *Store) CheckReadiness(_ context.Context) error { return nil }

// tenant returns the tenant partition, creating it when create is set.
// Callers must hold the appropriate lock.
func (s *Store) tenant(tenantID string, create bool) *tenantData {
	t, ok := s.tenants[tenantID]
	if !ok && create {
		t = &tenantData{
			nodes:    make(map[string]*domain.SafetyNode),
			vehicles: make(map[string]domain.Vehicle),
		}
		s.tenants[tenantID] = t
	}
	return t
}

func (s *Store) InsertNode(_ context.Context, node domain.SafetyNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(node.TenantID, true)
	if _, exists := t.nodes[node.ID]; exists {
		return fmt.Errorf("%w: node %s", domain.ErrDuplicate, node.ID)
	}
	stored := copyNode(node)
	t.nodes[node.ID] = &stored
	t.nodeOrder = append(t.nodeOrder, node.ID)
	return nil
}

func (s *Store) GetNode(_ context.Context, tenantID, nodeID string) (domain.SafetyNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tenant(tenantID, false)
	if t == nil {
		return domain.SafetyNode{}, notFoundNode(nodeID)
	}
	node, ok := t.nodes[nodeID]
	if !ok {
		return domain.SafetyNode{}, notFoundNode(nodeID)
	}
	return copyNode(*node), nil
}

func (s *Store) ListNodes(_ context.Context, tenantID string) ([]domain.SafetyNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tenant(tenantID, false)
	if t == nil {
		return []domain.SafetyNode{}, nil
	}
	out := make([]domain.SafetyNode, 0, len(t.nodeOrder))
	for _, id := range t.nodeOrder {
		out = append(out, copyNode(*t.nodes[id]))
	}
	return out, nil
}

// AppendNodeEvent appends under the write lock, so concurrent appends to the
// same node are serialized and none are lost.
func (s *Store) AppendNodeEvent(_ context.Context, tenantID, nodeID string, event domain.ClassifiedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenantID, false)
	if t == nil {
		return notFoundNode(nodeID)
	}
	node, ok := t.nodes[nodeID]
	if !ok {
		return notFoundNode(nodeID)
	}
	node.Events = append(node.Events, event)
	node.UpdatedAt = event.RecordedAt
	return nil
}

// InsertVehicle checks and inserts under one lock, so registration numbers
// stay unique per tenant even under concurrent registrations.
func (s *Store) InsertVehicle(_ context.Context, v domain.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(v.TenantID, true)
	key := domain.RegistrationKey(v.RegistrationNumber)
	if _, exists := t.vehicles[key]; exists {
		return fmt.Errorf("%w: vehicle %q already registered", domain.ErrDuplicate, v.RegistrationNumber)
	}
	t.vehicles[key] = v
	t.vehicleOrder = append(t.vehicleOrder, key)
	return nil
}

func (s *Store) ListVehicles(_ context.Context, tenantID string) ([]domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tenant(tenantID, false)
	if t == nil {
		return []domain.Vehicle{}, nil
	}
	out := make([]domain.Vehicle, 0, len(t.vehicleOrder))
	for _, key := range t.vehicleOrder {
		out = append(out, t.vehicles[key])
	}
	return out, nil
}

func (s *Store) VehicleByRegistration(_ context.Context, tenantID, registration string) (domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tenant(tenantID, false)
	if t == nil {
		return domain.Vehicle{}, notFoundVehicle(registration)
	}
	v, ok := t.vehicles[domain.RegistrationKey(registration)]
	if !ok {
		return domain.Vehicle{}, notFoundVehicle(registration)
	}
	return v, nil
}

func (s *Store) UpdateVehicleLocation(_ context.Context, tenantID, registration string, loc domain.LatLng) (domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenantID, false)
	if t == nil {
		return domain.Vehicle{}, notFoundVehicle(registration)
	}
	key := domain.RegistrationKey(registration)
	v, ok := t.vehicles[key]
	if !ok {
		return domain.Vehicle{}, notFoundVehicle(registration)
	}
	v.CurrentLocation = loc
	t.vehicles[key] = v
	return v, nil
}

func copyNode(n domain.SafetyNode) domain.SafetyNode {
	n.Events = slices.Clone(n.Events)
	if n.Events == nil {
		n.Events = []domain.ClassifiedEvent{}
	}
	return n
}

func notFoundNode(id string) error {
	return fmt.Errorf("%w: safety node %s", domain.ErrNotFound, id)
}

func notFoundVehicle(registration string) error {
	return fmt.Errorf("%w: vehicle %q", domain.ErrNotFound, registration)
}
