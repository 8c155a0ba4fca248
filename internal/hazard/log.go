// Package hazard owns safety nodes and their append-only classified event logs.
package hazard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/observability"
)

// NodeStore persists safety nodes per tenant. AppendNodeEvent must apply the
// append as a single atomic update and return domain.ErrNotFound, without
// mutating anything, when the node is absent or owned by another tenant.
type NodeStore interface {
	InsertNode(ctx context.Context, node domain.SafetyNode) error
	GetNode(ctx context.Context, tenantID, nodeID string) (domain.SafetyNode, error)
	ListNodes(ctx context.Context, tenantID string) ([]domain.SafetyNode, error)
	AppendNodeEvent(ctx context.Context, tenantID, nodeID string, event domain.ClassifiedEvent) error
}

// Publisher fans hazard notices out to display collaborators.
type Publisher interface {
	PublishHazard(ctx context.Context, notice domain.HazardNotice) error
}

// Log classifies readings and appends them to the owning node's event log.
type Log struct {
	nodes     NodeStore
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewLog creates a Log. Pass a nil publisher to disable notice fan-out.
func NewLog(nodes NodeStore, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Log {
	return &Log{
		nodes:     nodes,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// CreateNode places a new safety node on the tenant's site map.
func (l *Log) CreateNode(ctx context.Context, tenantID, name string, at domain.MapPoint) (domain.SafetyNode, error) {
	name = strings.TrimSpace(name)
	if tenantID == "" {
		return domain.SafetyNode{}, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	if name == "" {
		return domain.SafetyNode{}, fmt.Errorf("%w: node name is required", domain.ErrValidation)
	}

	now := domain.Now()
	node := domain.SafetyNode{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        name,
		Coordinates: at,
		Events:      []domain.ClassifiedEvent{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.nodes.InsertNode(ctx, node); err != nil {
		return domain.SafetyNode{}, fmt.Errorf("insert node: %w", err)
	}
	l.logger.Info("safety node created", "tenant_id", tenantID, "node_id", node.ID, "name", name)
	return node, nil
}

// Node returns one of the tenant's nodes with its full event history.
func (l *Log) Node(ctx context.Context, tenantID, nodeID string) (domain.SafetyNode, error) {
	return l.nodes.GetNode(ctx, tenantID, nodeID)
}

// Nodes lists the tenant's nodes.
func (l *Log) Nodes(ctx context.Context, tenantID string) ([]domain.SafetyNode, error) {
	return l.nodes.ListNodes(ctx, tenantID)
}

// Append classifies a reading and appends it to the node's event log.
// Checks run in order: node type, node existence, classification. The returned
// event carries the computed severity so callers need no second read.
func (l *Log) Append(ctx context.Context, tenantID, nodeID string, reading domain.SensorReading) (domain.ClassifiedEvent, error) {
	if tenantID == "" || nodeID == "" {
		l.reject(domain.ErrValidation)
		return domain.ClassifiedEvent{}, fmt.Errorf("%w: tenant and node are required", domain.ErrValidation)
	}
	if _, err := domain.ParseNodeType(string(reading.NodeType)); err != nil {
		l.reject(err)
		return domain.ClassifiedEvent{}, err
	}

	severity, err := domain.Classify(reading.NodeType, reading.Value)
	if err != nil {
		// A missing node outranks a bad reading.
		if _, getErr := l.nodes.GetNode(ctx, tenantID, nodeID); getErr != nil {
			l.reject(getErr)
			return domain.ClassifiedEvent{}, getErr
		}
		l.reject(err)
		return domain.ClassifiedEvent{}, err
	}

	event := domain.ClassifiedEvent{
		ID:         uuid.NewString(),
		NodeType:   reading.NodeType,
		RawValue:   reading.Value,
		Severity:   severity,
		RecordedAt: domain.Now(),
	}
	if err := l.nodes.AppendNodeEvent(ctx, tenantID, nodeID, event); err != nil {
		l.reject(err)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ClassifiedEvent{}, err
		}
		return domain.ClassifiedEvent{}, fmt.Errorf("append event: %w", err)
	}

	l.metrics.HazardEvents.WithLabelValues(string(event.NodeType), severity.String()).Inc()
	l.logger.Info("hazard event recorded",
		"tenant_id", tenantID,
		"node_id", nodeID,
		"type", event.NodeType,
		"value", event.RawValue,
		"severity", severity.String(),
	)

	l.publish(ctx, domain.HazardNotice{TenantID: tenantID, NodeID: nodeID, Event: event})
	return event, nil
}

// publish is best-effort: the event is already durable.
func (l *Log) publish(ctx context.Context, notice domain.HazardNotice) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishHazard(ctx, notice); err != nil {
		l.metrics.PublishErrors.Inc()
		l.logger.Warn("publish hazard notice failed",
			"tenant_id", notice.TenantID,
			"node_id", notice.NodeID,
			"event_id", notice.Event.ID,
			"error", err,
		)
	}
}

func (l *Log) reject(err error) {
	l.metrics.HazardRejected.WithLabelValues(domain.Kind(err)).Inc()
}
