package domain

import (
	"strings"
	"time"
)

// SensorReading is a transient classifier input; it is never persisted as-is.
type SensorReading struct {
	NodeType NodeType `json:"type"`
	Value    float64  `json:"value"`
}

// MapPoint is a position on the tenant's 2D site map.
type MapPoint struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// ClassifiedEvent is an immutable entry in a node's append-only event log.
type ClassifiedEvent struct {
	ID         string    `json:"id" bson:"id"`
	NodeType   NodeType  `json:"type" bson:"type"`
	RawValue   float64   `json:"value" bson:"value"`
	Severity   Severity  `json:"severity" bson:"severity"`
	RecordedAt time.Time `json:"recorded_at" bson:"recorded_at"`
}

// SafetyNode is a fixed sensor node placed on the site map. Its Events are
// kept in insertion order and are only ever appended to.
type SafetyNode struct {
	ID          string            `json:"id" bson:"_id"`
	TenantID    string            `json:"tenant_id" bson:"tenant_id"`
	Name        string            `json:"name" bson:"name"`
	Coordinates MapPoint          `json:"coordinates" bson:"coordinates"`
	Events      []ClassifiedEvent `json:"events" bson:"events"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" bson:"updated_at"`
}

// HazardNotice is the message published to display collaborators after an
// event has been appended.
type HazardNotice struct {
	TenantID string          `json:"tenant_id"`
	NodeID   string          `json:"node_id"`
	NodeName string          `json:"node_name,omitempty"`
	Event    ClassifiedEvent `json:"event"`
}

// Vehicle is a tenant-owned vehicle whose position feeds live tracking.
type Vehicle struct {
	ID                 string    `json:"id" bson:"_id"`
	TenantID           string    `json:"tenant_id" bson:"tenant_id"`
	RegistrationNumber string    `json:"registrationNumber" bson:"registration_number"`
	DriverName         string    `json:"driverName" bson:"driver_name"`
	CurrentLocation    LatLng    `json:"location" bson:"location"`
	AssignedAt         time.Time `json:"assignedAt" bson:"assigned_at"`
}

// RegistrationKey normalizes a registration number for per-tenant,
// case-insensitive uniqueness checks.
func RegistrationKey(registration string) string {
	return strings.ToLower(strings.TrimSpace(registration))
}
