package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// NodeType identifies the kind of sensor (or worker input) a reading came from.
type NodeType string

const (
	NodeTypeMethane        NodeType = "Methane"
	NodeTypeWorkerDistress NodeType = "WorkerDistress"
	NodeTypeTemperature    NodeType = "Temperature"
)

// ParseNodeType validates a node type string. Matching is exact.
func ParseNodeType(s string) (NodeType, error) {
	switch t := NodeType(s); t {
	case NodeTypeMethane, NodeTypeWorkerDistress, NodeTypeTemperature:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown node type %q", ErrValidation, s)
	}
}

// Severity is the three-level hazard tier shared with every display collaborator.
// The zero value is not a valid tier.
type Severity int

const (
	SeverityYellow Severity = iota + 1
	SeverityOrange
	SeverityRed
)

var severityNames = map[Severity]string{
	SeverityYellow: "Yellow",
	SeverityOrange: "Orange",
	SeverityRed:    "Red",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Valid reports whether s is one of the three defined tiers.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// ParseSeverity converts a tier name back into a Severity.
func ParseSeverity(name string) (Severity, error) {
	for s, n := range severityNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown severity %q", ErrValidation, name)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal severity: invalid tier %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Classify maps a raw reading onto a severity tier:
//   - Methane (concentration fraction): [0.01, 0.75] Yellow | (0.75, 1.25] Orange | >1.25 Red | <0.01 invalid
//   - WorkerDistress (cumulative presses): 1 Yellow | 2 Orange | >=3 Red | anything else invalid
//   - Temperature (degrees): <27.5 Yellow | [27.5, 32.5] Orange | >32.5 Red
//
// Temperature has no lower bound; deeply negative readings still classify as Yellow.
// Non-finite values are rejected for every type.
func Classify(nodeType NodeType, value float64) (Severity, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %s value %v is not finite", ErrInvalidReading, nodeType, value)
	}

	switch nodeType {
	case NodeTypeMethane:
		switch {
		case value >= 0.01 && value <= 0.75:
			return SeverityYellow, nil
		case value > 0.75 && value <= 1.25:
			return SeverityOrange, nil
		case value > 1.25:
			return SeverityRed, nil
		}
		return 0, fmt.Errorf("%w: methane concentration %v below 0.01", ErrInvalidReading, value)

	case NodeTypeWorkerDistress:
		switch {
		case value == 1:
			return SeverityYellow, nil
		case value == 2:
			return SeverityOrange, nil
		case value >= 3:
			return SeverityRed, nil
		}
		return 0, fmt.Errorf("%w: worker distress press count %v", ErrInvalidReading, value)

	case NodeTypeTemperature:
		switch {
		case value > 32.5:
			return SeverityRed, nil
		case value >= 27.5:
			return SeverityOrange, nil
		default:
			return SeverityYellow, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown node type %q", ErrValidation, nodeType)
}
