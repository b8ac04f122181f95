package geospatial

import (
	"math"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

const (
	earthRadiusKm = 6371.0
	// KmPerDegree is the flat approximation used for area limits.
	KmPerDegree = 111.0
	// baseZoom is the zoom level at which EstimateBounds spans 0.05° each side.
	baseZoom = 12
)

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Around returns the box enclosing a circle of radiusMeters around p.
func Around(p domain.GeoPoint, radiusMeters float64) domain.BoundingBox {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(p.Lat)))

	return domain.BoundingBox{
		LatMin: p.Lat - latDelta,
		LatMax: p.Lat + latDelta,
		LonMin: p.Lon - lonDelta,
		LonMax: p.Lon + lonDelta,
	}
}

// AreaKm2 approximates the surface of b with 111 km per degree of latitude and
// the longitude span scaled by the cosine of the middle latitude.
func AreaKm2(b domain.BoundingBox) float64 {
	latKm := (b.LatMax - b.LatMin) * KmPerDegree
	lonKm := (b.LonMax - b.LonMin) * KmPerDegree * math.Cos(toRad((b.LatMin+b.LatMax)/2))
	return latKm * lonKm
}

// EstimateBounds derives a viewport around center for a web-map zoom level.
// Each zoom step halves the span.
func EstimateBounds(center domain.GeoPoint, zoom float64) domain.BoundingBox {
	delta := 0.05 / math.Pow(2, zoom-baseZoom)
	return domain.BoundingBox{
		LatMin: center.Lat - delta,
		LatMax: center.Lat + delta,
		LonMin: center.Lon - delta,
		LonMax: center.Lon + delta,
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
