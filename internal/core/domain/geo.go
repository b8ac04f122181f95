package domain

import "fmt"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is an axis-aligned search region in degrees.
type BoundingBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// Validate reports ErrInvalidRegion unless both extents are strictly positive.
func (b BoundingBox) Validate() error {
	if !(b.LatMin < b.LatMax) || !(b.LonMin < b.LonMax) {
		return fmt.Errorf("%w: lat [%f, %f) lon [%f, %f)", ErrInvalidRegion, b.LatMin, b.LatMax, b.LonMin, b.LonMax)
	}
	return nil
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.LatMin + b.LatMax) / 2, Lon: (b.LonMin + b.LonMax) / 2}
}

// GridPolicy controls lattice density (Step, degrees) and per-cell search radius (meters).
type GridPolicy struct {
	Step   float64 `json:"step"`
	Radius float64 `json:"radius"`
}

// Validate reports ErrInvalidPolicy for a non-positive step or radius.
func (p GridPolicy) Validate() error {
	if !(p.Step > 0) || !(p.Radius > 0) {
		return fmt.Errorf("%w: step=%f radius=%f", ErrInvalidPolicy, p.Step, p.Radius)
	}
	return nil
}

// Named grid policies offered to users.
var (
	PresetFast    = GridPolicy{Step: 0.01, Radius: 1000}
	PresetPrecise = GridPolicy{Step: 0.005, Radius: 500}
)

// PolicyPreset resolves a preset name ("fast" or "precise").
func PolicyPreset(name string) (GridPolicy, bool) {
	switch name {
	case "fast":
		return PresetFast, true
	case "precise":
		return PresetPrecise, true
	}
	return GridPolicy{}, false
}
