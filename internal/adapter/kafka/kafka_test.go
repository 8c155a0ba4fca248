package kafka

import (
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/minesafe-service/internal/domain"
)

func TestMapMessageToRaw(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("node-1"),
		Value:     []byte(`{"tenant_id":"t1","node_id":"node-1","type":"Methane","value":0.4}`),
		Topic:     "sensor-readings",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "gateway", Value: []byte("shaft-3")},
		},
	}

	raw := mapMessageToRaw(msg)

	assert.Equal(t, []byte("node-1"), raw.Key)
	assert.JSONEq(t, string(msg.Value), string(raw.Value))
	assert.Equal(t, "sensor-readings", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "shaft-3", raw.Headers["gateway"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeNotice(t *testing.T) {
	recorded := time.Date(2025, 6, 3, 8, 30, 0, 0, time.UTC)
	notice := domain.HazardNotice{
		TenantID: "t1",
		NodeID:   "node-1",
		Event: domain.ClassifiedEvent{
			ID:         "evt-1",
			NodeType:   domain.NodeTypeMethane,
			RawValue:   1.7,
			Severity:   domain.SeverityRed,
			RecordedAt: recorded,
		},
	}

	msg, err := serializeNotice(notice)
	require.NoError(t, err)

	assert.Equal(t, []byte("node-1"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "severity", msg.Headers[0].Key)
	assert.Equal(t, []byte("Red"), msg.Headers[0].Value)
	assert.Equal(t, []byte("Methane"), msg.Headers[1].Value)
	assert.Equal(t, []byte("t1"), msg.Headers[2].Value)

	var decoded domain.HazardNotice
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, notice, decoded)
}
