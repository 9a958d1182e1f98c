package geo

import "fmt"

// Bounds is a rectangular area in degrees. It does not cross the antimeridian.
type Bounds struct {
	North float64 `json:"north" mapstructure:"north"`
	South float64 `json:"south" mapstructure:"south"`
	East  float64 `json:"east" mapstructure:"east"`
	West  float64 `json:"west" mapstructure:"west"`
}

// Validate checks that the edges describe a non-empty rectangle.
func (b Bounds) Validate() error {
	if b.North <= b.South {
		return fmt.Errorf("bounds: north (%v) must be greater than south (%v)", b.North, b.South)
	}
	if b.East <= b.West {
		return fmt.Errorf("bounds: east (%v) must be greater than west (%v)", b.East, b.West)
	}
	if b.North > 90 || b.South < -90 || b.East > 180 || b.West < -180 {
		return fmt.Errorf("bounds: edges out of range")
	}
	return nil
}

// Contains reports whether p lies inside the rectangle, edges included.
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat <= b.North && p.Lat >= b.South && p.Lng <= b.East && p.Lng >= b.West
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.North + b.South) / 2, Lng: (b.East + b.West) / 2}
}

// BoundsOf returns the smallest rectangle containing every point.
// It returns false when no points are given.
func BoundsOf(points ...GeoPoint) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := Bounds{North: points[0].Lat, South: points[0].Lat, East: points[0].Lng, West: points[0].Lng}
	for _, p := range points[1:] {
		if p.Lat > b.North {
			b.North = p.Lat
		}
		if p.Lat < b.South {
			b.South = p.Lat
		}
		if p.Lng > b.East {
			b.East = p.Lng
		}
		if p.Lng < b.West {
			b.West = p.Lng
		}
	}
	return b, true
}
