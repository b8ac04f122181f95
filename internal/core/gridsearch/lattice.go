package gridsearch

import (
	"fmt"
	"math"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// latticeEpsilon absorbs float noise in extent/step so that a box of 0.02° with a
// 0.01° step yields 2 centers per axis, not 3.
const latticeEpsilon = 1e-9

// MaxLatticeCells is the largest lattice CellCount accepts, whatever the caller's own limit.
const MaxLatticeCells = 1 << 24

// axisCount returns the number of half-open centers min, min+step, ... < max.
// It stays in float64 so a tiny step yields +Inf instead of wrapping an int.
func axisCount(min, max, step float64) float64 {
	n := math.Ceil((max-min)/step - latticeEpsilon)
	if n < 1 {
		n = 1
	}
	return n
}

// CellCount returns the number of lattice cells for box and step without
// materialising them. A lattice larger than MaxLatticeCells, or one whose size
// is not finite, is rejected with ErrInvalidPolicy.
func CellCount(box domain.BoundingBox, step float64) (int, error) {
	nLat, nLon, err := latticeSize(box, step)
	if err != nil {
		return 0, err
	}
	return nLat * nLon, nil
}

func latticeSize(box domain.BoundingBox, step float64) (int, int, error) {
	nLat := axisCount(box.LatMin, box.LatMax, step)
	nLon := axisCount(box.LonMin, box.LonMax, step)
	// NaN fails the comparison too.
	if !(nLat*nLon <= MaxLatticeCells) {
		return 0, 0, fmt.Errorf("%w: step %g yields more than %d cells", domain.ErrInvalidPolicy, step, MaxLatticeCells)
	}
	return int(nLat), int(nLon), nil
}

// Lattice returns cell centers latitude-major, both axes ascending.
// Centers are computed as min+i*step rather than accumulated so they do not drift.
func Lattice(box domain.BoundingBox, step float64) ([]domain.Cell, error) {
	nLat, nLon, err := latticeSize(box, step)
	if err != nil {
		return nil, err
	}

	cells := make([]domain.Cell, 0, nLat*nLon)
	for i := 0; i < nLat; i++ {
		lat := box.LatMin + float64(i)*step
		for j := 0; j < nLon; j++ {
			cells = append(cells, domain.Cell{
				Index:  len(cells),
				Center: domain.GeoPoint{Lat: lat, Lon: box.LonMin + float64(j)*step},
			})
		}
	}
	return cells, nil
}

// Dedup removes places sharing (name, latitude, longitude). The first occurrence
// wins and first-seen order is kept.
func Dedup(places []domain.Place) []domain.Place {
	seen := make(map[domain.PlaceKey]struct{}, len(places))
	unique := make([]domain.Place, 0, len(places))
	for _, p := range places {
		k := p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}
