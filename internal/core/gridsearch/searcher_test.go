package gridsearch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/gridsearch"
	"github.com/samirrijal/pharmacover/internal/core/ports"
)

var casablanca = domain.BoundingBox{LatMin: 33.50, LatMax: 33.52, LonMin: -7.60, LonMax: -7.58}

func quietSearcher(opts ...gridsearch.Option) *gridsearch.Searcher {
	opts = append([]gridsearch.Option{gridsearch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return gridsearch.New(opts...)
}

// recorder is a PointSearcher that serves canned responses keyed by rounded center.
type recorder struct {
	mu      sync.Mutex
	calls   []domain.GeoPoint
	respond func(center domain.GeoPoint) ([]domain.Place, int, error)
}

func (r *recorder) SearchNearby(_ context.Context, center domain.GeoPoint, _ float64) ([]domain.Place, int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, center)
	r.mu.Unlock()
	if r.respond == nil {
		return nil, 1, nil
	}
	return r.respond(center)
}

func key(p domain.GeoPoint) string { return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lon) }

func TestLattice_CasablancaCenters(t *testing.T) {
	cells, err := gridsearch.Lattice(casablanca, 0.01)
	require.NoError(t, err)
	want := []domain.GeoPoint{
		{Lat: 33.50, Lon: -7.60},
		{Lat: 33.50, Lon: -7.59},
		{Lat: 33.51, Lon: -7.60},
		{Lat: 33.51, Lon: -7.59},
	}
	require.Len(t, cells, len(want))
	for i, c := range cells {
		assert.Equal(t, i, c.Index)
		assert.InDelta(t, want[i].Lat, c.Center.Lat, 1e-9)
		assert.InDelta(t, want[i].Lon, c.Center.Lon, 1e-9)
	}
}

func TestLattice_StepLargerThanBox(t *testing.T) {
	cells, err := gridsearch.Lattice(casablanca, 100)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, domain.GeoPoint{Lat: 33.50, Lon: -7.60}, cells[0].Center)
}

func TestLattice_CountMatchesCeil(t *testing.T) {
	tests := []struct {
		box        domain.BoundingBox
		step       float64
		nLat, nLon int
	}{
		{domain.BoundingBox{LatMin: 0, LatMax: 0.025, LonMin: 0, LonMax: 0.015}, 0.01, 3, 2},
		{domain.BoundingBox{LatMin: 10, LatMax: 10.5, LonMin: 20, LonMax: 20.05}, 0.1, 5, 1},
		{domain.BoundingBox{LatMin: -1, LatMax: 1, LonMin: -1, LonMax: 1}, 0.3, 7, 7},
		{casablanca, 0.005, 4, 4},
	}
	for _, tt := range tests {
		cells, err := gridsearch.Lattice(tt.box, tt.step)
		require.NoError(t, err)
		assert.Len(t, cells, tt.nLat*tt.nLon, "box %+v step %v", tt.box, tt.step)
		n, err := gridsearch.CellCount(tt.box, tt.step)
		require.NoError(t, err)
		assert.Equal(t, len(cells), n)
		for _, c := range cells {
			assert.GreaterOrEqual(t, c.Center.Lat, tt.box.LatMin)
			assert.Less(t, c.Center.Lat, tt.box.LatMax)
			assert.GreaterOrEqual(t, c.Center.Lon, tt.box.LonMin)
			assert.Less(t, c.Center.Lon, tt.box.LonMax)
		}
	}
}

func TestLattice_LatitudeMajorOrder(t *testing.T) {
	cells, err := gridsearch.Lattice(domain.BoundingBox{LatMin: 0, LatMax: 0.03, LonMin: 0, LonMax: 0.02}, 0.01)
	require.NoError(t, err)
	require.Len(t, cells, 6)
	for i := 1; i < len(cells); i++ {
		prev, cur := cells[i-1].Center, cells[i].Center
		if cur.Lat == prev.Lat {
			assert.Greater(t, cur.Lon, prev.Lon)
		} else {
			assert.Greater(t, cur.Lat, prev.Lat)
		}
	}
}

func TestDedup(t *testing.T) {
	a := domain.Place{Name: "Pharmacie A", Latitude: 33.505, Longitude: -7.595}
	b := domain.Place{Name: "Pharmacie B", Latitude: 33.515, Longitude: -7.585}
	nearA := domain.Place{Name: "Pharmacie A", Latitude: 33.5050001, Longitude: -7.595}
	dupA := domain.Place{Name: "Pharmacie A", Address: "other", Latitude: 33.505, Longitude: -7.595}

	got := gridsearch.Dedup([]domain.Place{a, b, dupA, nearA, a})
	assert.Equal(t, []domain.Place{a, b, nearA}, got)

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, got, gridsearch.Dedup(got))
	})

	t.Run("order independent as a set", func(t *testing.T) {
		in := []domain.Place{a, b, a, nearA, b, a}
		rng := rand.New(rand.NewSource(7))
		for i := 0; i < 20; i++ {
			shuffled := append([]domain.Place(nil), in...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			assert.ElementsMatch(t, []domain.Place{a, b, nearA}, gridsearch.Dedup(shuffled))
		}
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, gridsearch.Dedup(nil))
	})
}

func TestSearchArea_DeduplicatesAcrossCells(t *testing.T) {
	shared := domain.Place{Name: "Pharmacie A", Latitude: 33.505, Longitude: -7.595}
	rec := &recorder{respond: func(c domain.GeoPoint) ([]domain.Place, int, error) {
		switch key(c) {
		case "33.5000,-7.6000", "33.5000,-7.5900":
			return []domain.Place{shared}, 1, nil
		}
		return nil, 1, nil
	}}

	res, err := quietSearcher().SearchArea(context.Background(), casablanca, domain.GridPolicy{Step: 0.01, Radius: 1000}, rec)
	require.NoError(t, err)
	assert.Equal(t, []domain.Place{shared}, res.Places)
	assert.Equal(t, 4, res.TotalRequests)
	assert.Equal(t, 4, res.Cells)
	assert.Empty(t, res.Failures)

	require.Len(t, rec.calls, 4)
	assert.Equal(t, "33.5000,-7.6000", key(rec.calls[0]))
	assert.Equal(t, "33.5100,-7.5900", key(rec.calls[3]))
}

func TestSearchArea_FailedCellIsSkipped(t *testing.T) {
	p1 := domain.Place{Name: "P1", Latitude: 33.501, Longitude: -7.599}
	p2 := domain.Place{Name: "P2", Latitude: 33.511, Longitude: -7.589}
	rec := &recorder{respond: func(c domain.GeoPoint) ([]domain.Place, int, error) {
		switch key(c) {
		case "33.5000,-7.5900":
			return nil, 0, errors.New("upstream 500")
		case "33.5000,-7.6000":
			return []domain.Place{p1}, 2, nil
		case "33.5100,-7.5900":
			return []domain.Place{p2}, 3, nil
		}
		return nil, 1, nil
	}}

	res, err := quietSearcher().SearchArea(context.Background(), casablanca, domain.GridPolicy{Step: 0.01, Radius: 1000}, rec)
	require.NoError(t, err)
	assert.Equal(t, []domain.Place{p1, p2}, res.Places)
	assert.Equal(t, 6, res.TotalRequests)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Cell.Index)
	assert.Contains(t, res.Failures[0].Error, "upstream 500")
}

func TestSearchArea_AllCellsFail(t *testing.T) {
	rec := &recorder{respond: func(domain.GeoPoint) ([]domain.Place, int, error) {
		return nil, 0, errors.New("boom")
	}}
	res, err := quietSearcher().SearchArea(context.Background(), casablanca, domain.GridPolicy{Step: 0.01, Radius: 1000}, rec)
	require.NoError(t, err)
	assert.Empty(t, res.Places)
	assert.Zero(t, res.TotalRequests)
	assert.Len(t, res.Failures, 4)
}

func TestSearchArea_SingleCell(t *testing.T) {
	rec := &recorder{}
	res, err := quietSearcher().SearchArea(context.Background(), casablanca, domain.GridPolicy{Step: 100, Radius: 1000}, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cells)
	assert.Equal(t, 1, res.TotalRequests)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, domain.GeoPoint{Lat: 33.50, Lon: -7.60}, rec.calls[0])
}

func TestSearchArea_InvalidInputMakesNoCalls(t *testing.T) {
	tests := []struct {
		name   string
		box    domain.BoundingBox
		policy domain.GridPolicy
		want   error
	}{
		{"inverted latitude", domain.BoundingBox{LatMin: 33.52, LatMax: 33.50, LonMin: -7.60, LonMax: -7.58}, domain.GridPolicy{Step: 0.01, Radius: 1000}, domain.ErrInvalidRegion},
		{"empty longitude", domain.BoundingBox{LatMin: 33.50, LatMax: 33.52, LonMin: -7.60, LonMax: -7.60}, domain.GridPolicy{Step: 0.01, Radius: 1000}, domain.ErrInvalidRegion},
		{"zero step", casablanca, domain.GridPolicy{Step: 0, Radius: 1000}, domain.ErrInvalidPolicy},
		{"negative radius", casablanca, domain.GridPolicy{Step: 0.01, Radius: -1}, domain.ErrInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			_, err := quietSearcher().SearchArea(context.Background(), tt.box, tt.policy, rec)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestSearchArea_MaxCells(t *testing.T) {
	rec := &recorder{}
	_, err := quietSearcher(gridsearch.WithMaxCells(3)).SearchArea(context.Background(), casablanca, domain.GridPolicy{Step: 0.01, Radius: 1000}, rec)
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
	assert.Empty(t, rec.calls)
}

func TestCellCount_TinyStepIsRejected(t *testing.T) {
	for _, step := range []float64{1e-12, 1e-25, 5e-324} {
		n, err := gridsearch.CellCount(casablanca, step)
		assert.ErrorIs(t, err, domain.ErrInvalidPolicy, "step %g", step)
		assert.Zero(t, n)

		cells, err := gridsearch.Lattice(casablanca, step)
		assert.ErrorIs(t, err, domain.ErrInvalidPolicy, "step %g", step)
		assert.Nil(t, cells)
	}
}

func TestSearchArea_TinyStepMakesNoCalls(t *testing.T) {
	for _, step := range []float64{1e-12, 1e-25} {
		t.Run(fmt.Sprint(step), func(t *testing.T) {
			rec := &recorder{}
			res, err := quietSearcher().SearchArea(context.Background(), casablanca, domain.GridPolicy{Step: step, Radius: 1000}, rec)
			assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
			assert.Nil(t, res)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestSearchArea_ConcurrencyDoesNotChangeResult(t *testing.T) {
	box := domain.BoundingBox{LatMin: 33.50, LatMax: 33.56, LonMin: -7.60, LonMax: -7.55}
	respond := func(c domain.GeoPoint) ([]domain.Place, int, error) {
		// Neighbouring cells report overlapping places so dedup order matters.
		row := int((c.Lat - 33.50) * 100.0001)
		col := int((c.Lon + 7.60) * 100.0001)
		if (row+col)%5 == 4 {
			return nil, 0, errors.New("flaky")
		}
		places := []domain.Place{
			{Name: fmt.Sprintf("R%d", row), Address: fmt.Sprintf("from %d,%d", row, col), Latitude: float64(row), Longitude: 0},
			{Name: fmt.Sprintf("C%d", col), Address: fmt.Sprintf("from %d,%d", row, col), Latitude: 0, Longitude: float64(col)},
		}
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		return places, 1 + (row+col)%2, nil
	}

	seq, err := quietSearcher(gridsearch.WithConcurrency(1)).SearchArea(context.Background(), box, domain.GridPolicy{Step: 0.01, Radius: 1000}, &recorder{respond: respond})
	require.NoError(t, err)
	par, err := quietSearcher(gridsearch.WithConcurrency(4)).SearchArea(context.Background(), box, domain.GridPolicy{Step: 0.01, Radius: 1000}, &recorder{respond: respond})
	require.NoError(t, err)

	assert.Equal(t, seq, par)
	assert.NotEmpty(t, seq.Failures)
}

func TestSearchArea_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	ps := ports.PointSearchFunc(func(context.Context, domain.GeoPoint, float64) ([]domain.Place, int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, 1, nil
	})
	box := domain.BoundingBox{LatMin: 0, LatMax: 0.05, LonMin: 0, LonMax: 0.05}
	res, err := quietSearcher(gridsearch.WithConcurrency(3)).SearchArea(context.Background(), box, domain.GridPolicy{Step: 0.01, Radius: 500}, ps)
	require.NoError(t, err)
	assert.Equal(t, 25, res.TotalRequests)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestSearchArea_CellTimeout(t *testing.T) {
	ps := ports.PointSearchFunc(func(ctx context.Context, c domain.GeoPoint, _ float64) ([]domain.Place, int, error) {
		if c.Lon > -7.595 {
			<-ctx.Done()
			return nil, 0, ctx.Err()
		}
		return []domain.Place{{Name: key(c), Latitude: c.Lat, Longitude: c.Lon}}, 1, nil
	})
	res, err := quietSearcher(gridsearch.WithCellTimeout(20*time.Millisecond)).SearchArea(context.Background(), casablanca, domain.GridPolicy{Step: 0.01, Radius: 1000}, ps)
	require.NoError(t, err)
	assert.Len(t, res.Places, 2)
	assert.Len(t, res.Failures, 2)
	assert.Equal(t, 2, res.TotalRequests)
}

func TestSearchArea_ParentCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	ps := ports.PointSearchFunc(func(context.Context, domain.GeoPoint, float64) ([]domain.Place, int, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
		return nil, 1, nil
	})
	_, err := quietSearcher().SearchArea(ctx, casablanca, domain.GridPolicy{Step: 0.01, Radius: 1000}, ps)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchAreaWithProgress(t *testing.T) {
	rec := &recorder{respond: func(c domain.GeoPoint) ([]domain.Place, int, error) {
		if key(c) == "33.5100,-7.6000" {
			return nil, 0, errors.New("denied")
		}
		return []domain.Place{{Name: key(c)}}, 1, nil
	}}
	var got []gridsearch.Progress
	_, err := quietSearcher(gridsearch.WithConcurrency(2)).SearchAreaWithProgress(context.Background(), casablanca, domain.GridPolicy{Step: 0.01, Radius: 1000}, rec,
		func(p gridsearch.Progress) { got = append(got, p) })
	require.NoError(t, err)
	require.Len(t, got, 4)

	failed := 0
	for i, p := range got {
		assert.Equal(t, i+1, p.Done)
		assert.Equal(t, 4, p.Total)
		if p.Err != nil {
			failed++
			assert.Equal(t, 2, p.Cell.Index)
		}
	}
	assert.Equal(t, 1, failed)
}
