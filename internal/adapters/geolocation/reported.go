// Package geolocation provides position sources for route resolution.
package geolocation

import (
	"context"
	"errors"
	"strconv"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
)

var errNoFix = errors.New("no position supplied")

// Reported is a position the collector's device captured and sent with the request.
// Exactly one of Fix or Reason is meaningful.
type Reported struct {
	Fix    *domain.Coordinate
	Reason domain.GeolocationReason
}

// FromQuery builds a Reported from request parameters. lat and lon must both be
// present to form a fix; geoErr carries the device failure code otherwise.
func FromQuery(lat, lon, geoErr string) (Reported, error) {
	if geoErr != "" {
		return Reported{Reason: domain.ParseGeolocationReason(geoErr)}, nil
	}
	if lat == "" && lon == "" {
		return Reported{}, nil
	}
	if lat == "" || lon == "" {
		return Reported{}, domain.ErrInvalidCoordinate
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return Reported{}, domain.ErrInvalidCoordinate
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return Reported{}, domain.ErrInvalidCoordinate
	}
	c := domain.Coordinate{Lat: la, Lon: lo}
	if err := c.Validate(); err != nil {
		return Reported{}, err
	}
	return Reported{Fix: &c}, nil
}

// Present reports whether the device sent either a fix or a failure code.
func (r Reported) Present() bool {
	return r.Fix != nil || r.Reason != ""
}

// CurrentPosition implements ports.Geolocator.
func (r Reported) CurrentPosition(ctx context.Context, _ domain.PositionOptions) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoTimeout, err)
	}
	if r.Reason != "" {
		return domain.Coordinate{}, domain.NewGeolocationError(r.Reason, nil)
	}
	if r.Fix == nil {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, errNoFix)
	}
	if err := r.Fix.Validate(); err != nil {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, err)
	}
	return *r.Fix, nil
}

// Chain tries each source in order. A source that is unsupported hands over to
// the next one; a denial or timeout is final.
type Chain []ports.Geolocator

func (c Chain) CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
	err := domain.NewGeolocationError(domain.GeoUnsupported, errNoFix)
	for _, src := range c {
		if src == nil {
			continue
		}
		var pos domain.Coordinate
		pos, err = src.CurrentPosition(ctx, opts)
		if err == nil {
			return pos, nil
		}
		var geoErr *domain.GeolocationError
		if errors.As(err, &geoErr) && geoErr.Reason != domain.GeoUnsupported {
			return domain.Coordinate{}, err
		}
		if ctx.Err() != nil {
			return domain.Coordinate{}, err
		}
	}
	return domain.Coordinate{}, err
}
