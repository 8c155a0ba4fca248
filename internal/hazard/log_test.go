package hazard_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/hazard"
	"github.com/couchcryptid/minesafe-service/internal/observability"
	"github.com/couchcryptid/minesafe-service/internal/store/memory"
)

const tenant = "tenant-1"

type recordingPublisher struct {
	notices []domain.HazardNotice
	err     error
}

func (p *recordingPublisher) PublishHazard(_ context.Context, n domain.HazardNotice) error {
	p.notices = append(p.notices, n)
	return p.err
}

// countingStore wraps the memory store to observe lookups.
type countingStore struct {
	*memory.Store
	gets int
}

func (s *countingStore) GetNode(ctx context.Context, tenantID, nodeID string) (domain.SafetyNode, error) {
	s.gets++
	return s.Store.GetNode(ctx, tenantID, nodeID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLog(t *testing.T, pub hazard.Publisher) (*hazard.Log, *countingStore, *observability.Metrics) {
	t.Helper()
	store := &countingStore{Store: memory.New()}
	metrics := observability.NewMetricsForTesting()
	return hazard.NewLog(store, pub, discardLogger(), metrics), store, metrics
}

func freezeClock(t *testing.T) time.Time {
	t.Helper()
	at := time.Date(2025, time.June, 3, 8, 30, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
	return at
}

func TestLog_AppendReturnsClassifiedEvent(t *testing.T) {
	frozen := freezeClock(t)
	pub := &recordingPublisher{}
	log, _, metrics := newLog(t, pub)
	ctx := context.Background()

	node, err := log.CreateNode(ctx, tenant, "Shaft 3", domain.MapPoint{X: 120, Y: 45})
	require.NoError(t, err)

	event, err := log.Append(ctx, tenant, node.ID, domain.SensorReading{NodeType: domain.NodeTypeMethane, Value: 1.0})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, domain.SeverityOrange, event.Severity)
	assert.Equal(t, 1.0, event.RawValue)
	assert.Equal(t, frozen, event.RecordedAt)

	stored, err := log.Node(ctx, tenant, node.ID)
	require.NoError(t, err)
	require.Len(t, stored.Events, 1)
	assert.Equal(t, event, stored.Events[0])

	require.Len(t, pub.notices, 1)
	assert.Equal(t, node.ID, pub.notices[0].NodeID)
	assert.Equal(t, tenant, pub.notices[0].TenantID)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HazardEvents.WithLabelValues("Methane", "Orange")), 0)
}

func TestLog_AppendOrderPreserved(t *testing.T) {
	log, _, _ := newLog(t, nil)
	ctx := context.Background()
	node, err := log.CreateNode(ctx, tenant, "Vent A", domain.MapPoint{})
	require.NoError(t, err)

	readings := []domain.SensorReading{
		{NodeType: domain.NodeTypeTemperature, Value: 20},
		{NodeType: domain.NodeTypeWorkerDistress, Value: 3},
		{NodeType: domain.NodeTypeMethane, Value: 0.3},
	}
	for _, r := range readings {
		_, err := log.Append(ctx, tenant, node.ID, r)
		require.NoError(t, err)
	}

	stored, err := log.Node(ctx, tenant, node.ID)
	require.NoError(t, err)
	require.Len(t, stored.Events, 3)
	assert.Equal(t, domain.SeverityYellow, stored.Events[0].Severity)
	assert.Equal(t, domain.SeverityRed, stored.Events[1].Severity)
	assert.Equal(t, domain.NodeTypeMethane, stored.Events[2].NodeType)
}

func TestLog_AppendUnknownNode(t *testing.T) {
	log, store, metrics := newLog(t, nil)
	ctx := context.Background()
	node, err := log.CreateNode(ctx, tenant, "Vent A", domain.MapPoint{})
	require.NoError(t, err)

	_, err = log.Append(ctx, tenant, "does-not-exist", domain.SensorReading{NodeType: domain.NodeTypeMethane, Value: 0.5})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := store.Store.GetNode(ctx, tenant, node.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Events, "no document is mutated")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HazardRejected.WithLabelValues("not_found")), 0)
}

func TestLog_AppendOtherTenantsNode(t *testing.T) {
	log, _, _ := newLog(t, nil)
	ctx := context.Background()
	node, err := log.CreateNode(ctx, tenant, "Vent A", domain.MapPoint{})
	require.NoError(t, err)

	_, err = log.Append(ctx, "intruder", node.ID, domain.SensorReading{NodeType: domain.NodeTypeMethane, Value: 0.5})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLog_InvalidReading(t *testing.T) {
	log, store, metrics := newLog(t, nil)
	ctx := context.Background()
	node, err := log.CreateNode(ctx, tenant, "Vent A", domain.MapPoint{})
	require.NoError(t, err)

	_, err = log.Append(ctx, tenant, node.ID, domain.SensorReading{NodeType: domain.NodeTypeMethane, Value: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidReading)
	assert.Equal(t, 1, store.gets, "existence is checked before reporting the reading")

	stored, err := log.Node(ctx, tenant, node.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Events)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HazardRejected.WithLabelValues("invalid_reading")), 0)
}

func TestLog_NotFoundOutranksInvalidReading(t *testing.T) {
	log, _, _ := newLog(t, nil)

	_, err := log.Append(context.Background(), tenant, "ghost", domain.SensorReading{NodeType: domain.NodeTypeWorkerDistress, Value: 0})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLog_UnknownTypeIsValidationError(t *testing.T) {
	log, store, _ := newLog(t, nil)

	_, err := log.Append(context.Background(), tenant, "any", domain.SensorReading{NodeType: "Radon", Value: 4})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, store.gets)
}

func TestLog_HappyPathSkipsExistenceRead(t *testing.T) {
	log, store, _ := newLog(t, nil)
	ctx := context.Background()
	node, err := log.CreateNode(ctx, tenant, "Vent A", domain.MapPoint{})
	require.NoError(t, err)

	_, err = log.Append(ctx, tenant, node.ID, domain.SensorReading{NodeType: domain.NodeTypeTemperature, Value: 33})
	require.NoError(t, err)
	assert.Zero(t, store.gets)
}

func TestLog_PublishFailureDoesNotFailAppend(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	log, _, metrics := newLog(t, pub)
	ctx := context.Background()
	node, err := log.CreateNode(ctx, tenant, "Vent A", domain.MapPoint{})
	require.NoError(t, err)

	event, err := log.Append(ctx, tenant, node.ID, domain.SensorReading{NodeType: domain.NodeTypeWorkerDistress, Value: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityOrange, event.Severity)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
}

func TestLog_CreateNodeValidation(t *testing.T) {
	log, _, _ := newLog(t, nil)
	ctx := context.Background()

	_, err := log.CreateNode(ctx, tenant, "   ", domain.MapPoint{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = log.CreateNode(ctx, "", "Vent", domain.MapPoint{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	node, err := log.CreateNode(ctx, tenant, "  Vent B ", domain.MapPoint{X: 3, Y: 4})
	require.NoError(t, err)
	assert.Equal(t, "Vent B", node.Name)

	nodes, err := log.Nodes(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}
