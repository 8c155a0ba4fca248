package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/hazard"
	"github.com/couchcryptid/minesafe-service/internal/observability"
	"github.com/couchcryptid/minesafe-service/internal/pipeline"
	"github.com/couchcryptid/minesafe-service/internal/store/memory"
)

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawMessage
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	m.mu.Lock()
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()
	// block until context cancelled to simulate waiting for messages
	<-ctx.Done()
	return nil, ctx.Err()
}

type appendCall struct {
	tenantID string
	nodeID   string
	reading  domain.SensorReading
}

type mockRecorder struct {
	mu    sync.Mutex
	calls []appendCall
	errs  []error
}

func (m *mockRecorder) Append(_ context.Context, tenantID, nodeID string, reading domain.SensorReading) (domain.ClassifiedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, appendCall{tenantID, nodeID, reading})
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return domain.ClassifiedEvent{}, err
		}
	}
	return domain.ClassifiedEvent{ID: "evt"}, nil
}

type commitCounter struct {
	mu      sync.Mutex
	offsets []int64
}

func (c *commitCounter) message(offset int64, value string) domain.RawMessage {
	return domain.RawMessage{
		Value:  []byte(value),
		Topic:  "sensor-readings",
		Offset: offset,
		Commit: func(context.Context) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.offsets = append(c.offsets, offset)
			return nil
		},
	}
}

func (c *commitCounter) committed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offsets...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	commits := &commitCounter{}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		commits.message(1, `{"tenant_id":"t1","node_id":"n1","type":"Methane","value":0.4}`),
		commits.message(2, `{"tenant_id":"t1","node_id":"n2","type":"WorkerDistress","value":3}`),
	}}}
	rec := &mockRecorder{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, rec, discardLogger(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, appendCall{"t1", "n1", domain.SensorReading{NodeType: domain.NodeTypeMethane, Value: 0.4}}, rec.calls[0])
	assert.Equal(t, domain.NodeTypeWorkerDistress, rec.calls[1].reading.NodeType)
	assert.Equal(t, []int64{1, 2}, commits.committed())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ReadingsConsumed), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	p := pipeline.New(&mockExtractor{}, &mockRecorder{}, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_RejectionsAreSkippedAndCommitted(t *testing.T) {
	commits := &commitCounter{}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		commits.message(1, `not json`),
		commits.message(2, `{"tenant_id":"t1","node_id":"ghost","type":"Methane","value":0.4}`),
		commits.message(3, `{"tenant_id":"t1","node_id":"n1","type":"Methane","value":0}`),
		commits.message(4, `{"tenant_id":"t1","node_id":"n1","type":"Temperature","value":30}`),
	}}}
	rec := &mockRecorder{errs: []error{domain.ErrNotFound, domain.ErrInvalidReading}}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, rec, discardLogger(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Len(t, rec.calls, 3, "malformed payload never reaches the log")
	assert.Equal(t, []int64{1, 2, 3, 4}, commits.committed())
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.ReadingsFailed), 0)
}

func TestPipeline_Run_StoreFailureRetriesWithoutCommit(t *testing.T) {
	commits := &commitCounter{}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		commits.message(7, `{"tenant_id":"t1","node_id":"n1","type":"Methane","value":1.2}`),
	}}}
	rec := &mockRecorder{errs: []error{errors.New("connection reset")}}

	p := pipeline.New(ext, rec, discardLogger(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, time.Second)

	require.Len(t, rec.calls, 2, "retried after the first backoff")
	assert.Equal(t, rec.calls[0], rec.calls[1])
	assert.Equal(t, []int64{7}, commits.committed(), "committed once, after success")
}

func TestPipeline_Run_StopsDuringBackoff(t *testing.T) {
	commits := &commitCounter{}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		commits.message(1, `{"tenant_id":"t1","node_id":"n1","type":"Methane","value":1.2}`),
	}}}
	down := errors.New("store down")
	rec := &mockRecorder{errs: []error{down, down, down, down, down, down, down, down}}

	p := pipeline.New(ext, rec, discardLogger(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, 100*time.Millisecond)

	assert.Empty(t, commits.committed())
}

func TestPipeline_CheckReadinessWhileRunning(t *testing.T) {
	p := pipeline.New(&mockExtractor{}, &mockRecorder{}, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return p.CheckReadiness(context.Background()) == nil }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestPipeline_WithHazardLog(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	metrics := observability.NewMetricsForTesting()
	log := hazard.NewLog(store, nil, discardLogger(), metrics)
	node, err := log.CreateNode(ctx, "t1", "Shaft 3", domain.MapPoint{})
	require.NoError(t, err)

	commits := &commitCounter{}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		commits.message(1, `{"tenant_id":"t1","node_id":"`+node.ID+`","type":"Methane","value":1.7}`),
		commits.message(2, `{"tenant_id":"t2","node_id":"`+node.ID+`","type":"Methane","value":1.7}`),
	}}}

	runFor(t, pipeline.New(ext, log, discardLogger(), metrics, 10), 300*time.Millisecond)

	stored, err := log.Node(ctx, "t1", node.ID)
	require.NoError(t, err)
	require.Len(t, stored.Events, 1)
	assert.Equal(t, domain.SeverityRed, stored.Events[0].Severity)
	assert.Equal(t, []int64{1, 2}, commits.committed())
}

func TestDecodeReading(t *testing.T) {
	value := 31.0
	got, err := pipeline.DecodeReading(domain.RawMessage{
		Key:   []byte("node-from-key"),
		Value: []byte(`{"tenant_id":" t1 ","type":"Temperature","value":31}`),
	})
	require.NoError(t, err)

	want := domain.TenantReading{TenantID: "t1", NodeID: "node-from-key", Type: domain.NodeTypeTemperature, Value: &value}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded reading mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeReading_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed":     `{`,
		"no tenant":     `{"node_id":"n1","type":"Methane","value":1}`,
		"no node":       `{"tenant_id":"t1","type":"Methane","value":1}`,
		"missing value": `{"tenant_id":"t1","node_id":"n1","type":"Methane"}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := pipeline.DecodeReading(domain.RawMessage{Value: []byte(payload)})
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
