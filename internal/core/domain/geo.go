package domain

import "fmt"

// Coordinate is a WGS 84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports ErrInvalidCoordinate when either axis is out of range.
func (c Coordinate) Validate() error {
	if c.Lat != c.Lat || c.Lon != c.Lon {
		return fmt.Errorf("%w: NaN component", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

// LonLat renders the coordinate in the provider's "lon,lat" order.
func (c Coordinate) LonLat() string {
	return fmt.Sprintf("%g,%g", c.Lon, c.Lat)
}

// Label is the human-readable placeholder used when no address is known.
func (c Coordinate) Label() string {
	return fmt.Sprintf("Lat: %.6f, Lon: %.6f", c.Lat, c.Lon)
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether c lies inside the box (edges inclusive).
func (b Bounds) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}
