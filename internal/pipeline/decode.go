package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/couchcryptid/minesafe-service/internal/domain"
)

// DecodeReading parses a gateway message into a tenant-addressed reading.
// Malformed payloads are validation errors so the message is skipped, not retried.
func DecodeReading(raw domain.RawMessage) (domain.TenantReading, error) {
	var r domain.TenantReading
	if err := json.Unmarshal(raw.Value, &r); err != nil {
		return domain.TenantReading{}, fmt.Errorf("%w: decode reading: %v", domain.ErrValidation, err)
	}
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.NodeID = strings.TrimSpace(r.NodeID)
	if r.NodeID == "" && len(raw.Key) > 0 {
		r.NodeID = string(raw.Key)
	}
	switch {
	case r.TenantID == "":
		return domain.TenantReading{}, fmt.Errorf("%w: reading has no tenant_id", domain.ErrValidation)
	case r.NodeID == "":
		return domain.TenantReading{}, fmt.Errorf("%w: reading has no node_id", domain.ErrValidation)
	case r.Value == nil:
		return domain.TenantReading{}, fmt.Errorf("%w: reading has no value", domain.ErrValidation)
	}
	return r, nil
}
