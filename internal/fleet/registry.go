// Package fleet registers tenant vehicles and keeps their current positions.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/couchcryptid/minesafe-service/internal/domain"
)

// VehicleStore persists vehicles per tenant. InsertVehicle must return
// domain.ErrDuplicate when the tenant already has a vehicle with the same
// registration key.
type VehicleStore interface {
	InsertVehicle(ctx context.Context, v domain.Vehicle) error
	ListVehicles(ctx context.Context, tenantID string) ([]domain.Vehicle, error)
	VehicleByRegistration(ctx context.Context, tenantID, registration string) (domain.Vehicle, error)
	UpdateVehicleLocation(ctx context.Context, tenantID, registration string, loc domain.LatLng) (domain.Vehicle, error)
}

// Registration is the caller input for a new vehicle.
type Registration struct {
	RegistrationNumber string        `json:"registrationNumber"`
	DriverName         string        `json:"driverName"`
	Location           domain.LatLng `json:"location"`
}

// Registry validates and stores vehicles.
type Registry struct {
	store  VehicleStore
	logger *slog.Logger
}

func NewRegistry(store VehicleStore, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Register stores a new vehicle for the tenant.
func (r *Registry) Register(ctx context.Context, tenantID string, in Registration) (domain.Vehicle, error) {
	reg := strings.TrimSpace(in.RegistrationNumber)
	if tenantID == "" {
		return domain.Vehicle{}, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	if reg == "" {
		return domain.Vehicle{}, fmt.Errorf("%w: registrationNumber is required", domain.ErrValidation)
	}
	if err := in.Location.Validate(); err != nil {
		return domain.Vehicle{}, err
	}

	v := domain.Vehicle{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		RegistrationNumber: reg,
		DriverName:         strings.TrimSpace(in.DriverName),
		CurrentLocation:    in.Location,
		AssignedAt:         domain.Now(),
	}
	if err := r.store.InsertVehicle(ctx, v); err != nil {
		return domain.Vehicle{}, err
	}
	r.logger.Info("vehicle registered", "tenant_id", tenantID, "registration", reg, "vehicle_id", v.ID)
	return v, nil
}

func (r *Registry) List(ctx context.Context, tenantID string) ([]domain.Vehicle, error) {
	return r.store.ListVehicles(ctx, tenantID)
}

// Vehicle looks a vehicle up by registration within the tenant only.
func (r *Registry) Vehicle(ctx context.Context, tenantID, registration string) (domain.Vehicle, error) {
	if strings.TrimSpace(registration) == "" {
		return domain.Vehicle{}, fmt.Errorf("%w: registration is required", domain.ErrValidation)
	}
	return r.store.VehicleByRegistration(ctx, tenantID, registration)
}

// UpdateLocation moves the vehicle. Live tracking sessions pick the new
// position up on their next tick.
func (r *Registry) UpdateLocation(ctx context.Context, tenantID, registration string, loc domain.LatLng) (domain.Vehicle, error) {
	if err := loc.Validate(); err != nil {
		return domain.Vehicle{}, err
	}
	v, err := r.store.UpdateVehicleLocation(ctx, tenantID, registration, loc)
	if err != nil {
		return domain.Vehicle{}, err
	}
	r.logger.Debug("vehicle moved", "tenant_id", tenantID, "registration", v.RegistrationNumber, "location", loc.String())
	return v, nil
}
