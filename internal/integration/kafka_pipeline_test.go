//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/minesafe-service/internal/adapter/kafka"
	"github.com/couchcryptid/minesafe-service/internal/config"
	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/hazard"
	"github.com/couchcryptid/minesafe-service/internal/observability"
	"github.com/couchcryptid/minesafe-service/internal/pipeline"
	"github.com/couchcryptid/minesafe-service/internal/store/memory"
)

const (
	testReadingsTopic = "test-readings"
	testHazardTopic   = "test-hazards"
	testTenant        = "tenant-int"
)

// publishedNotice holds a deserialized message read from the hazard topic.
type publishedNotice struct {
	Notice  domain.HazardNotice
	Key     string
	Headers map[string]string
}

func readNotice(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedNotice {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from hazard topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var notice domain.HazardNotice
	require.NoError(t, json.Unmarshal(msg.Value, &notice), "unmarshal hazard notice")
	return publishedNotice{Notice: notice, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaReadingsTopic: testReadingsTopic,
		KafkaHazardTopic:   testHazardTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func readingMessage(t *testing.T, nodeID string, nodeType domain.NodeType, value float64) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(domain.TenantReading{TenantID: testTenant, NodeID: nodeID, Type: nodeType, Value: &value})
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(nodeID), Value: payload}
}

func hazardConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testHazardTopic,
		GroupID:     fmt.Sprintf("test-hazard-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter round-trips a reading through the reader adapter and a
// hazard notice through the writer adapter.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	createTopic(t, broker, testHazardTopic)
	cfg := testConfig(broker, "test-reader")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testReadingsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	msg := readingMessage(t, "node-1", domain.NodeTypeMethane, 0.9)
	require.NoError(t, producer.WriteMessages(ctx, msg))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// The consumer group may need to rebalance before partitions are assigned.
	var batch []domain.RawMessage
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for reading")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("node-1"), raw.Key)
	assert.Equal(t, testReadingsTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	reading, err := pipeline.DecodeReading(raw)
	require.NoError(t, err)
	assert.Equal(t, testTenant, reading.TenantID)
	assert.Equal(t, domain.NodeTypeMethane, reading.Type)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.PublishHazard(ctx, domain.HazardNotice{
		TenantID: testTenant,
		NodeID:   "node-1",
		Event: domain.ClassifiedEvent{
			ID:         "evt-1",
			NodeType:   domain.NodeTypeMethane,
			RawValue:   0.9,
			Severity:   domain.SeverityOrange,
			RecordedAt: time.Date(2025, 6, 3, 8, 30, 0, 0, time.UTC),
		},
	}))

	got := readNotice(ctx, t, hazardConsumer(t, broker))
	assert.Equal(t, "node-1", got.Key)
	assert.Equal(t, "Orange", got.Headers["severity"])
	assert.Equal(t, "Methane", got.Headers["node_type"])
	assert.Equal(t, testTenant, got.Headers["tenant_id"])
	assert.Equal(t, domain.SeverityOrange, got.Notice.Event.Severity)
	assert.Equal(t, "evt-1", got.Notice.Event.ID)
}

// TestPipelineEndToEnd feeds readings, including a poison pill and an
// unclassifiable value, through the pipeline into the event log and checks
// that only the accepted readings are recorded and announced.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	createTopic(t, broker, testHazardTopic)
	cfg := testConfig(broker, "test-pipeline")

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	log := hazard.NewLog(memory.New(), writer, discardLogger(), metrics)
	node, err := log.CreateNode(ctx, testTenant, "Shaft 3", domain.MapPoint{X: 10, Y: 20})
	require.NoError(t, err)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testReadingsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		readingMessage(t, node.ID, domain.NodeTypeMethane, 0.3),
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		readingMessage(t, node.ID, domain.NodeTypeWorkerDistress, 0),
		readingMessage(t, "ghost", domain.NodeTypeTemperature, 40),
		readingMessage(t, node.ID, domain.NodeTypeTemperature, 33),
		readingMessage(t, node.ID, domain.NodeTypeMethane, 1.1),
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	p := pipeline.New(reader, log, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := hazardConsumer(t, broker)
	want := []domain.Severity{domain.SeverityYellow, domain.SeverityRed, domain.SeverityOrange}
	got := make([]domain.Severity, 0, len(want))
	for range want {
		n := readNotice(ctx, t, consumer)
		assert.Equal(t, node.ID, n.Key)
		assert.Equal(t, testTenant, n.Notice.TenantID)
		got = append(got, n.Notice.Event.Severity)
	}
	assert.Equal(t, want, got)

	// Nothing else reaches the hazard topic.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "rejected readings must not be announced")

	pipelineCancel()
	require.NoError(t, <-errCh)

	stored, err := log.Node(ctx, testTenant, node.ID)
	require.NoError(t, err)
	require.Len(t, stored.Events, 3)
	assert.Equal(t, domain.NodeTypeMethane, stored.Events[0].NodeType)
	assert.Equal(t, domain.NodeTypeTemperature, stored.Events[1].NodeType)
	assert.Equal(t, 1.1, stored.Events[2].RawValue)
}
