package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCoordinate is returned before any network call is made.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrGeolocationUnavailable covers permission denial, timeouts and missing capability.
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")

	// ErrRouteUnavailable is the only hard failure a route resolution surfaces.
	ErrRouteUnavailable = errors.New("route unavailable")

	// ErrRouteProvider marks a non-2xx response, malformed payload or empty features.
	ErrRouteProvider = errors.New("route provider error")

	// ErrGeometryDecode marks malformed route geometry. Always also matches ErrRouteProvider.
	ErrGeometryDecode = fmt.Errorf("%w: geometry decode", ErrRouteProvider)

	// ErrSuperseded is returned to a resolution that a newer one in the same session replaced.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// GeolocationReason classifies why a position fix could not be obtained.
type GeolocationReason string

const (
	GeoPermissionDenied GeolocationReason = "permission_denied"
	GeoTimeout          GeolocationReason = "timeout"
	GeoUnsupported      GeolocationReason = "unsupported"
)

// ParseGeolocationReason maps a device error code onto a reason, defaulting to unsupported.
func ParseGeolocationReason(s string) GeolocationReason {
	switch GeolocationReason(s) {
	case GeoPermissionDenied, GeoTimeout:
		return GeolocationReason(s)
	default:
		return GeoUnsupported
	}
}

// GeolocationError carries the reason a fix failed. It matches ErrGeolocationUnavailable.
type GeolocationError struct {
	Reason GeolocationReason
	Err    error
}

func (e *GeolocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Reason, e.Err)
	}
	return "geolocation " + string(e.Reason)
}

func (e *GeolocationError) Is(target error) bool { return target == ErrGeolocationUnavailable }

func (e *GeolocationError) Unwrap() error { return e.Err }

// NewGeolocationError builds a GeolocationError.
func NewGeolocationError(reason GeolocationReason, err error) error {
	return &GeolocationError{Reason: reason, Err: err}
}
