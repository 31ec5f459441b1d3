package geospatial

import (
	"fmt"

	"github.com/twpayne/go-polyline"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// EncodePath encodes a path with the standard polyline algorithm at 1e5 precision.
func EncodePath(path []domain.Coordinate) string {
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePath decodes an encoded polyline into (lat, lon) points in encoded order.
func DecodePath(encoded string) ([]domain.Coordinate, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}

	path := make([]domain.Coordinate, 0, len(coords))
	for i, c := range coords {
		if len(c) != 2 {
			return nil, fmt.Errorf("decode polyline: point %d has %d dimensions", i, len(c))
		}
		p := domain.Coordinate{Lat: c[0], Lon: c[1]}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("decode polyline: point %d: %w", i, err)
		}
		path = append(path, p)
	}
	return path, nil
}
