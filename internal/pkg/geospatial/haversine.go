package geospatial

import (
	"math"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

const (
	earthRadiusKm = 6371.0

	// AverageUrbanSpeedKmh is the fixed speed used for straight-line travel estimates.
	AverageUrbanSpeedKmh = 30.0
)

// HaversineKm calculates the great-circle distance in kilometres between two points.
func HaversineKm(from, to domain.Coordinate) float64 {
	dLat := toRad(to.Lat - from.Lat)
	dLon := toRad(to.Lon - from.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(from.Lat))*math.Cos(toRad(to.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// rounding can push a a hair outside [0,1] near antipodes
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineKm(domain.Coordinate{Lat: lat1, Lon: lon1}, domain.Coordinate{Lat: lat2, Lon: lon2}) * 1000
}

// TravelMinutes estimates the drive time for a straight-line distance at the average urban speed.
func TravelMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm / AverageUrbanSpeedKmh * 60))
}

// Estimate returns the straight-line distance and travel time from origin to destination.
func Estimate(origin, destination domain.Coordinate) domain.ProximityEstimate {
	km := HaversineKm(origin, destination)
	return domain.ProximityEstimate{DistanceKm: km, Minutes: TravelMinutes(km)}
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(center domain.Coordinate, radiusMeters float64) domain.Bounds {
	latDelta := radiusMeters / 111320.0
	cos := math.Cos(toRad(center.Lat))
	lonDelta := 180.0
	if cos > 1e-9 {
		lonDelta = math.Min(180, radiusMeters/(111320.0*cos))
	}

	return domain.Bounds{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MinLon: math.Max(-180, center.Lon-lonDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
		MaxLon: math.Min(180, center.Lon+lonDelta),
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
