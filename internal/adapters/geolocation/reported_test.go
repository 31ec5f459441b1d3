package geolocation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/environmenttech/wastewatch/internal/adapters/geolocation"
	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
)

type stubLocator struct {
	pos   domain.Coordinate
	err   error
	calls int
}

func (s *stubLocator) CurrentPosition(context.Context, domain.PositionOptions) (domain.Coordinate, error) {
	s.calls++
	return s.pos, s.err
}

func reason(t *testing.T, err error) domain.GeolocationReason {
	t.Helper()
	var geoErr *domain.GeolocationError
	require.True(t, errors.As(err, &geoErr), "expected GeolocationError, got %v", err)
	return geoErr.Reason
}

func TestFromQuery(t *testing.T) {
	r, err := geolocation.FromQuery("18.5204", "73.8567", "")
	require.NoError(t, err)
	require.NotNil(t, r.Fix)
	assert.Equal(t, domain.Coordinate{Lat: 18.5204, Lon: 73.8567}, *r.Fix)
	assert.True(t, r.Present())

	r, err = geolocation.FromQuery("", "", "permission_denied")
	require.NoError(t, err)
	assert.Equal(t, domain.GeoPermissionDenied, r.Reason)

	r, err = geolocation.FromQuery("", "", "")
	require.NoError(t, err)
	assert.False(t, r.Present())

	for _, bad := range [][2]string{{"18.5", ""}, {"abc", "73.8"}, {"91", "73.8"}, {"18.5", "181"}} {
		_, err := geolocation.FromQuery(bad[0], bad[1], "")
		assert.ErrorIs(t, err, domain.ErrInvalidCoordinate, "%v", bad)
	}
}

func TestReportedCurrentPosition(t *testing.T) {
	fix := domain.Coordinate{Lat: 18.6, Lon: 73.8}
	pos, err := geolocation.Reported{Fix: &fix}.CurrentPosition(context.Background(), domain.PositionOptions{})
	require.NoError(t, err)
	assert.Equal(t, fix, pos)

	_, err = geolocation.Reported{Reason: domain.GeoTimeout}.CurrentPosition(context.Background(), domain.PositionOptions{})
	assert.ErrorIs(t, err, domain.ErrGeolocationUnavailable)
	assert.Equal(t, domain.GeoTimeout, reason(t, err))

	_, err = geolocation.Reported{}.CurrentPosition(context.Background(), domain.PositionOptions{})
	assert.Equal(t, domain.GeoUnsupported, reason(t, err))
}

func TestChainFallsThroughUnsupported(t *testing.T) {
	device := &stubLocator{pos: domain.Coordinate{Lat: 18.55, Lon: 73.9}}
	chain := geolocation.Chain{geolocation.Reported{}, nil, device}

	pos, err := chain.CurrentPosition(context.Background(), domain.PositionOptions{HighAccuracy: true})
	require.NoError(t, err)
	assert.Equal(t, device.pos, pos)
	assert.Equal(t, 1, device.calls)
}

func TestChainStopsOnDenial(t *testing.T) {
	device := &stubLocator{pos: domain.Coordinate{Lat: 18.55, Lon: 73.9}}
	chain := geolocation.Chain{geolocation.Reported{Reason: domain.GeoPermissionDenied}, device}

	_, err := chain.CurrentPosition(context.Background(), domain.PositionOptions{})
	assert.Equal(t, domain.GeoPermissionDenied, reason(t, err))
	assert.Zero(t, device.calls)
}

func TestChainAllUnsupported(t *testing.T) {
	offline := &stubLocator{err: domain.NewGeolocationError(domain.GeoUnsupported, errors.New("offline"))}
	var chain ports.Geolocator = geolocation.Chain{geolocation.Reported{}, offline}

	_, err := chain.CurrentPosition(context.Background(), domain.PositionOptions{})
	assert.Equal(t, domain.GeoUnsupported, reason(t, err))
	assert.Equal(t, 1, offline.calls)

	_, err = geolocation.Chain{}.CurrentPosition(context.Background(), domain.PositionOptions{})
	assert.Equal(t, domain.GeoUnsupported, reason(t, err))
}
