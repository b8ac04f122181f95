// Package gridsearch covers a bounding box with a lattice of circular cells and
// aggregates the places found by a point searcher in every cell.
package gridsearch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
)

const (
	DefaultCellTimeout = 60 * time.Second
	DefaultMaxCells    = 100_000
)

// Progress describes one finished cell. Err is non-nil when the cell was skipped.
type Progress struct {
	Cell     domain.Cell
	Done     int
	Total    int
	Places   int
	Requests int
	Err      error
}

// ProgressFunc observes finished cells. Calls are serialised.
type ProgressFunc func(Progress)

// Searcher runs area searches. The zero value is not usable; use New.
type Searcher struct {
	concurrency int
	cellTimeout time.Duration
	maxCells    int
	logger      *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithConcurrency bounds the number of cells searched at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(s *Searcher) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// WithCellTimeout bounds the time spent on a single cell, pagination included.
func WithCellTimeout(d time.Duration) Option {
	return func(s *Searcher) {
		if d > 0 {
			s.cellTimeout = d
		}
	}
}

// WithMaxCells rejects lattices larger than n cells.
func WithMaxCells(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.maxCells = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Searcher. By default cells are searched one at a time.
func New(opts ...Option) *Searcher {
	s := &Searcher{
		concurrency: 1,
		cellTimeout: DefaultCellTimeout,
		maxCells:    DefaultMaxCells,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type cellOutcome struct {
	places   []domain.Place
	requests int
	err      error
}

// SearchArea searches every lattice cell of box and returns the deduplicated union.
func (s *Searcher) SearchArea(ctx context.Context, box domain.BoundingBox, policy domain.GridPolicy, ps ports.PointSearcher) (*domain.SearchResult, error) {
	return s.SearchAreaWithProgress(ctx, box, policy, ps, nil)
}

// SearchAreaWithProgress is SearchArea with a per-cell observer.
//
// A failing cell is logged, recorded in Failures and contributes neither places
// nor requests. Cancelling ctx aborts the whole search with ctx's error.
// Outcomes are merged in lattice order regardless of concurrency, so the result
// is the same for any concurrency level.
func (s *Searcher) SearchAreaWithProgress(ctx context.Context, box domain.BoundingBox, policy domain.GridPolicy, ps ports.PointSearcher, progress ProgressFunc) (*domain.SearchResult, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	n, err := CellCount(box, policy.Step)
	if err != nil {
		return nil, err
	}
	if n > s.maxCells {
		return nil, fmt.Errorf("%w: %d cells exceeds limit of %d", domain.ErrInvalidPolicy, n, s.maxCells)
	}

	cells, err := Lattice(box, policy.Step)
	if err != nil {
		return nil, err
	}
	outcomes := make([]cellOutcome, len(cells))

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for i, cell := range cells {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := s.searchCell(ctx, ps, cell, policy.Radius)
			outcomes[i] = out
			if progress != nil {
				mu.Lock()
				done++
				progress(Progress{
					Cell:     cell,
					Done:     done,
					Total:    len(cells),
					Places:   len(out.places),
					Requests: out.requests,
					Err:      out.err,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("area search interrupted: %w", err)
	}

	res := &domain.SearchResult{Cells: len(cells)}
	var all []domain.Place
	for i, out := range outcomes {
		if out.err != nil {
			res.Failures = append(res.Failures, domain.CellFailure{Cell: cells[i], Error: out.err.Error()})
			continue
		}
		res.TotalRequests += out.requests
		all = append(all, out.places...)
	}
	res.Places = Dedup(all)

	s.logger.Info("area search finished",
		"cells", res.Cells,
		"failed_cells", len(res.Failures),
		"places", len(res.Places),
		"requests", res.TotalRequests,
	)
	return res, nil
}

func (s *Searcher) searchCell(ctx context.Context, ps ports.PointSearcher, cell domain.Cell, radius float64) cellOutcome {
	if err := ctx.Err(); err != nil {
		return cellOutcome{err: err}
	}
	cctx, cancel := context.WithTimeout(ctx, s.cellTimeout)
	defer cancel()

	places, requests, err := ps.SearchNearby(cctx, cell.Center, radius)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("cell search failed, skipping",
				"cell", cell.Index,
				"lat", cell.Center.Lat,
				"lon", cell.Center.Lon,
				"error", err,
			)
		}
		return cellOutcome{err: err}
	}
	return cellOutcome{places: places, requests: requests}
}
