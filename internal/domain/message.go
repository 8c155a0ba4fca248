package domain

import (
	"context"
	"time"
)

// RawMessage is a message read from the bus, before decoding.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// TenantReading is a sensor reading addressed to one tenant's node, as
// published by site gateways.
type TenantReading struct {
	TenantID string   `json:"tenant_id"`
	NodeID   string   `json:"node_id"`
	Type     NodeType `json:"type"`
	Value    *float64 `json:"value"`
}
