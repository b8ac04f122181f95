// Package coverage finds the parts of a region that are far from every known place.
package coverage

import (
	"context"
	"fmt"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/gridsearch"
	"github.com/samirrijal/pharmacover/internal/pkg/geospatial"
)

const (
	DefaultStep      = 0.001
	DefaultRadius    = 300.0
	DefaultMaxPoints = 250_000

	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	// pointTolerance is the side of the degenerate rectangle stored per place.
	pointTolerance = 1e-9
)

// Analyzer computes coverage gaps over a fine analysis grid.
type Analyzer struct {
	step      float64
	radius    float64
	maxPoints int
}

// NewAnalyzer creates an Analyzer. Non-positive arguments select the defaults.
func NewAnalyzer(step, radiusMeters float64, maxPoints int) *Analyzer {
	if !(step > 0) {
		step = DefaultStep
	}
	if !(radiusMeters > 0) {
		radiusMeters = DefaultRadius
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Analyzer{step: step, radius: radiusMeters, maxPoints: maxPoints}
}

type indexedPlace struct {
	point orb.Point
	rect  *rtreego.Rect
}

func (p *indexedPlace) Bounds() *rtreego.Rect { return p.rect }

// Gaps returns the grid points of box that have no place within the radius.
// The grid uses the same half-open lattice as the area search.
func (a *Analyzer) Gaps(ctx context.Context, box domain.BoundingBox, places []domain.Place) (*domain.CoverageReport, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if n, err := gridsearch.CellCount(box, a.step); err != nil || n > a.maxPoints {
		return nil, fmt.Errorf("%w: analysis grid exceeds %d points", domain.ErrGridTooLarge, a.maxPoints)
	}

	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)
	for _, p := range places {
		pt := rtreego.Point{p.Latitude, p.Longitude}
		tree.Insert(&indexedPlace{
			point: orb.Point{p.Longitude, p.Latitude},
			rect:  pt.ToRect(pointTolerance),
		})
	}

	grid, err := gridsearch.Lattice(box, a.step)
	if err != nil {
		return nil, err
	}
	report := &domain.CoverageReport{
		Step:       a.step,
		Radius:     a.radius,
		GridPoints: len(grid),
		Gaps:       make([]domain.GeoPoint, 0),
	}

	for i, cell := range grid {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !a.covered(tree, cell.Center) {
			report.Gaps = append(report.Gaps, cell.Center)
		}
	}

	if len(grid) > 0 {
		report.Covered = float64(len(grid)-len(report.Gaps)) / float64(len(grid))
	}
	return report, nil
}

func (a *Analyzer) covered(tree *rtreego.Rtree, c domain.GeoPoint) bool {
	if tree.Size() == 0 {
		return false
	}
	// padded so the flat window never clips the spherical radius
	window := geospatial.Around(c, a.radius*1.01)
	rect, err := rtreego.NewRect(
		rtreego.Point{window.LatMin, window.LonMin},
		[]float64{window.LatMax - window.LatMin, window.LonMax - window.LonMin},
	)
	if err != nil {
		return false
	}

	origin := orb.Point{c.Lon, c.Lat}
	for _, s := range tree.SearchIntersect(rect) {
		p := s.(*indexedPlace)
		if geo.DistanceHaversine(origin, p.point) <= a.radius {
			return true
		}
	}
	return false
}
