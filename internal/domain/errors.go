package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by every component. Callers match with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrInvalidReading = errors.New("invalid reading")
	ErrUpstream       = errors.New("upstream error")
	ErrNoRoute        = errors.New("no route")
	ErrDuplicate      = errors.New("duplicate")
)

// UpstreamError carries an external service failure verbatim for diagnosis.
type UpstreamError struct {
	Service    string // "place_details" or "directions"
	HTTPStatus int
	Status     string // provider status string, e.g. "REQUEST_DENIED"
	Message    string
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != "" && e.Message != "":
		return fmt.Sprintf("%s upstream error: status %d %s: %s", e.Service, e.HTTPStatus, e.Status, e.Message)
	case e.Status != "":
		return fmt.Sprintf("%s upstream error: status %d %s", e.Service, e.HTTPStatus, e.Status)
	default:
		return fmt.Sprintf("%s upstream error: status %d: %s", e.Service, e.HTTPStatus, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Kind returns a short machine-readable label for err, used in API error
// bodies and in-band stream error payloads.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidReading):
		return "invalid_reading"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	default:
		return "internal"
	}
}
