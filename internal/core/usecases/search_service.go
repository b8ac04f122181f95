package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/pharmacover/internal/core/coverage"
	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/gridsearch"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/pkg/geospatial"
	"github.com/samirrijal/pharmacover/internal/pkg/metrics"
	"github.com/samirrijal/pharmacover/internal/pkg/telemetry"
)

const (
	// SearchCost is the number of credits charged for a saved search.
	SearchCost = 1
	// CellCostUSD is the upstream price of one cell query.
	CellCostUSD = 0.032
)

// SearchConfig holds the limits applied to non-admin searches.
type SearchConfig struct {
	MaxAreaKm2 float64
	// Timeout bounds a whole area search; zero means no limit.
	Timeout time.Duration
}

// SearchRequest describes an area search to run and save under Name.
type SearchRequest struct {
	Name   string             `json:"name"`
	Box    domain.BoundingBox `json:"bounds"`
	Policy domain.GridPolicy  `json:"policy"`
}

// SearchService orchestrates area searches, their history and credit charges.
type SearchService struct {
	searches ports.SearchRepository
	users    ports.UserRepository
	grid     *gridsearch.Searcher
	points   ports.PointSearcher
	events   ports.EventPublisher
	coverage *coverage.Analyzer
	cfg      SearchConfig
	now      func() time.Time
}

// NewSearchService creates a new SearchService. events may be nil.
func NewSearchService(
	searches ports.SearchRepository,
	users ports.UserRepository,
	grid *gridsearch.Searcher,
	points ports.PointSearcher,
	events ports.EventPublisher,
	analyzer *coverage.Analyzer,
	cfg SearchConfig,
) *SearchService {
	return &SearchService{
		searches: searches,
		users:    users,
		grid:     grid,
		points:   points,
		events:   events,
		coverage: analyzer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Estimate reports the lattice size and cost of a prospective search.
func (s *SearchService) Estimate(box domain.BoundingBox, policy domain.GridPolicy, p domain.Principal) (*domain.SearchEstimate, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	cells, err := gridsearch.CellCount(box, policy.Step)
	if err != nil {
		return nil, err
	}
	est := &domain.SearchEstimate{
		Box:     box,
		Policy:  policy,
		Cells:   cells,
		AreaKm2: geospatial.AreaKm2(box),
		CostUSD: float64(cells) * CellCostUSD,
	}
	if !p.IsAdmin {
		est.TooLarge = est.AreaKm2 > s.cfg.MaxAreaKm2
		est.Credits = SearchCost
	}
	return est, nil
}

// EstimateView estimates a search over the viewport of a web map.
func (s *SearchService) EstimateView(center domain.GeoPoint, zoom float64, policy domain.GridPolicy, p domain.Principal) (*domain.SearchEstimate, error) {
	return s.Estimate(geospatial.EstimateBounds(center, zoom), policy, p)
}

// Preflight rejects a request that cannot start: bad input, a duplicate name,
// an oversized area or an empty balance.
func (s *SearchService) Preflight(ctx context.Context, p domain.Principal, req SearchRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: search name is required", domain.ErrInvalidArgument)
	}
	if err := req.Box.Validate(); err != nil {
		return err
	}
	if err := req.Policy.Validate(); err != nil {
		return err
	}
	if _, err := gridsearch.CellCount(req.Box, req.Policy.Step); err != nil {
		return err
	}

	exists, err := s.searches.NameExists(ctx, p.Username, req.Name)
	if err != nil {
		return fmt.Errorf("check name: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %q", domain.ErrSearchNameTaken, req.Name)
	}

	if p.IsAdmin {
		return nil
	}
	if area := geospatial.AreaKm2(req.Box); area > s.cfg.MaxAreaKm2 {
		return fmt.Errorf("%w: %.2f km² exceeds %.2f km²", domain.ErrAreaTooLarge, area, s.cfg.MaxAreaKm2)
	}
	u, err := s.users.Get(ctx, p.Username)
	if err != nil {
		return err
	}
	if u.Credits < SearchCost {
		return domain.ErrInsufficientCredits
	}
	return nil
}

// Execute runs the grid search and streams per-cell progress for searchID.
func (s *SearchService) Execute(ctx context.Context, p domain.Principal, searchID string, req SearchRequest) (*domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanAreaSearch)
	defer span.End()
	span.SetAttributes(telemetry.AttrSearchID.String(searchID), telemetry.AttrUser.String(p.Username))

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.grid.SearchAreaWithProgress(ctx, req.Box, req.Policy, s.points, func(pr gridsearch.Progress) {
		outcome := metrics.OutcomeOK
		if pr.Err != nil {
			outcome = metrics.OutcomeFailed
		}
		metrics.CellsProcessed.WithLabelValues(outcome).Inc()

		if s.events == nil {
			return
		}
		ev := &domain.SearchProgress{
			SearchID: searchID,
			UserID:   p.Username,
			Cell:     pr.Cell,
			Done:     pr.Done,
			Total:    pr.Total,
			Places:   pr.Places,
			Requests: pr.Requests,
			Failed:   pr.Err != nil,
		}
		if err := s.events.PublishProgress(ctx, ev); err != nil {
			slog.Debug("publish progress failed", "search_id", searchID, "error", err)
		}
	})
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Searches.WithLabelValues(metrics.OutcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		telemetry.AttrCells.Int(res.Cells),
		telemetry.AttrFailed.Int(len(res.Failures)),
		telemetry.AttrPlaces.Int(len(res.Places)),
		telemetry.AttrRequests.Int(res.TotalRequests),
	)
	return res, nil
}

// Save persists the result as a versioned search record.
func (s *SearchService) Save(ctx context.Context, p domain.Principal, searchID string, req SearchRequest, res *domain.SearchResult) (*domain.SearchRecord, error) {
	rec := &domain.SearchRecord{
		ID:            searchID,
		SchemaVersion: domain.SearchSchemaVersion,
		Name:          strings.TrimSpace(req.Name),
		UserID:        p.Username,
		Box:           req.Box,
		Policy:        req.Policy,
		TotalRequests: res.TotalRequests,
		Cells:         res.Cells,
		FailedCells:   len(res.Failures),
		PlaceCount:    len(res.Places),
		Places:        res.Places,
		CreatedAt:     s.now(),
	}
	if err := s.searches.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("save search: %w", err)
	}
	return rec, nil
}

// Charge deducts the search cost from non-admin principals.
func (s *SearchService) Charge(ctx context.Context, p domain.Principal) error {
	if p.IsAdmin {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanChargeCredit)
	defer span.End()

	if err := s.users.DeductCredits(ctx, p.Username, SearchCost); err != nil {
		span.RecordError(err)
		return err
	}
	metrics.CreditsConsumed.Add(SearchCost)
	return nil
}

// Discard deletes a saved record whose charge failed.
func (s *SearchService) Discard(ctx context.Context, searchID string) error {
	err := s.searches.Delete(ctx, searchID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// RecordRequests adds spent upstream requests to the user's counter.
func (s *SearchService) RecordRequests(ctx context.Context, p domain.Principal, n int) error {
	if n == 0 {
		return nil
	}
	return s.users.AddRequests(ctx, p.Username, n)
}

// Announce publishes the completion event. Delivery is best-effort.
func (s *SearchService) Announce(ctx context.Context, rec *domain.SearchRecord) {
	if s.events == nil {
		return
	}
	ev := &domain.SearchCompleted{
		SearchID:      rec.ID,
		UserID:        rec.UserID,
		Name:          rec.Name,
		Places:        rec.PlaceCount,
		TotalRequests: rec.TotalRequests,
		CompletedAt:   s.now(),
	}
	if err := s.events.PublishCompleted(ctx, ev); err != nil {
		slog.Warn("publish search completed failed", "search_id", rec.ID, "error", err)
	}
}

// NewSearchID returns a fresh record identifier.
func NewSearchID() string { return uuid.NewString() }

// Run executes a search end to end: preflight, grid search, save, charge.
// An empty result returns ErrNoResults without saving or charging, but the
// requests spent are still counted. A failed charge removes the saved record.
func (s *SearchService) Run(ctx context.Context, p domain.Principal, req SearchRequest) (*domain.SearchRecord, error) {
	if err := s.Preflight(ctx, p, req); err != nil {
		metrics.Searches.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}
	return s.RunPrepared(ctx, p, NewSearchID(), req)
}

// RunPrepared is Run for a request that already passed Preflight.
func (s *SearchService) RunPrepared(ctx context.Context, p domain.Principal, searchID string, req SearchRequest) (*domain.SearchRecord, error) {
	logger := slog.With("search_id", searchID, "user", p.Username, "name", req.Name)

	res, err := s.Execute(ctx, p, searchID, req)
	if err != nil {
		return nil, err
	}

	if err := s.RecordRequests(ctx, p, res.TotalRequests); err != nil {
		logger.Warn("failed to record request count", "requests", res.TotalRequests, "error", err)
	}

	if len(res.Places) == 0 {
		metrics.Searches.WithLabelValues(metrics.OutcomeNoResults).Inc()
		logger.Info("search found no places", "cells", res.Cells, "failed_cells", len(res.Failures))
		return nil, domain.ErrNoResults
	}

	rec, err := s.Save(ctx, p, searchID, req, res)
	if err != nil {
		metrics.Searches.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, err
	}

	if err := s.Charge(ctx, p); err != nil {
		if derr := s.Discard(ctx, searchID); derr != nil {
			logger.Error("failed to discard unpaid search", "error", derr)
		}
		metrics.Searches.WithLabelValues(metrics.OutcomeRejected).Inc()
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return nil, err
		}
		return nil, fmt.Errorf("charge credits: %w", err)
	}

	metrics.Searches.WithLabelValues(metrics.OutcomeOK).Inc()
	logger.Info("search saved",
		"places", rec.PlaceCount,
		"requests", rec.TotalRequests,
		"failed_cells", rec.FailedCells,
	)
	s.Announce(ctx, rec)
	return rec, nil
}

// List returns a page of history. Admins see every user's searches when all is set.
func (s *SearchService) List(ctx context.Context, p domain.Principal, all bool, offset, limit int) ([]domain.SearchRecord, int, error) {
	owner := p.Username
	if all && p.IsAdmin {
		owner = ""
	}
	return s.searches.List(ctx, owner, offset, limit)
}

// Get returns a record with its places. Other users' records are reported as
// not found unless the principal is an admin.
func (s *SearchService) Get(ctx context.Context, p domain.Principal, id string) (*domain.SearchRecord, error) {
	rec, err := s.searches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != p.Username && !p.IsAdmin {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// Coverage analyses the gaps between the places of a saved search.
func (s *SearchService) Coverage(ctx context.Context, p domain.Principal, id string) (*domain.CoverageReport, error) {
	rec, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCoverage)
	defer span.End()
	return s.coverage.Gaps(ctx, rec.Box, rec.Places)
}
