package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samirrijal/pharmacover/internal/adapters/places"
	"github.com/samirrijal/pharmacover/internal/core/coverage"
	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/gridsearch"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
	"github.com/samirrijal/pharmacover/internal/pkg/config"
	"github.com/samirrijal/pharmacover/internal/pkg/geospatial"
	"github.com/samirrijal/pharmacover/internal/pkg/logging"
)

var errMissingAPIKey = errors.New("PHARMACOVER_PLACES_API_KEY is not set")

type options struct {
	box      domain.BoundingBox
	osmFile  string
	preset   string
	step     float64
	radius   float64
	coverage bool
	estimate bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "gridsearch",
		Short: "Find every pharmacy in a bounding box by tiling it with nearby searches",
		Long: `gridsearch tiles a bounding box into a lattice of cells, queries the places
API around each cell center and prints the deduplicated places as JSON.

The box comes from --lat-min/--lat-max/--lon-min/--lon-max or from the <bounds>
element of an OSM export (--osm). The API key is read from PHARMACOVER_PLACES_API_KEY.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.box.LatMin, "lat-min", 0, "southern edge")
	f.Float64Var(&opts.box.LatMax, "lat-max", 0, "northern edge")
	f.Float64Var(&opts.box.LonMin, "lon-min", 0, "western edge")
	f.Float64Var(&opts.box.LonMax, "lon-max", 0, "eastern edge")
	f.StringVar(&opts.osmFile, "osm", "", "read the box from an OSM XML file")
	f.StringVar(&opts.preset, "preset", "fast", "grid preset: fast or precise")
	f.Float64Var(&opts.step, "step", 0, "lattice step in degrees (overrides the preset)")
	f.Float64Var(&opts.radius, "radius", 0, "search radius in meters (overrides the preset)")
	f.BoolVar(&opts.coverage, "coverage", false, "also report points with no pharmacy in range")
	f.BoolVar(&opts.estimate, "estimate", false, "print the lattice size and cost, then exit")
	cmd.MarkFlagsMutuallyExclusive("osm", "lat-min")
	cmd.MarkFlagsMutuallyExclusive("osm", "lat-max")
	cmd.MarkFlagsMutuallyExclusive("osm", "lon-min")
	cmd.MarkFlagsMutuallyExclusive("osm", "lon-max")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func resolvePolicy(opts options) (domain.GridPolicy, error) {
	policy, ok := domain.PolicyPreset(opts.preset)
	if !ok {
		return domain.GridPolicy{}, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidPolicy, opts.preset)
	}
	if opts.step != 0 {
		policy.Step = opts.step
	}
	if opts.radius != 0 {
		policy.Radius = opts.radius
	}
	return policy, policy.Validate()
}

func resolveBox(opts options) (domain.BoundingBox, error) {
	if opts.osmFile == "" {
		return opts.box, opts.box.Validate()
	}
	f, err := os.Open(opts.osmFile)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	defer f.Close()
	return geospatial.ReadOSMBounds(f)
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	box, err := resolveBox(opts)
	if err != nil {
		return err
	}
	policy, err := resolvePolicy(opts)
	if err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")

	if opts.estimate {
		cells, err := gridsearch.CellCount(box, policy.Step)
		if err != nil {
			return err
		}
		return out.Encode(domain.SearchEstimate{
			Box:     box,
			Policy:  policy,
			Cells:   cells,
			AreaKm2: geospatial.AreaKm2(box),
			CostUSD: float64(cells) * usecases.CellCostUSD,
		})
	}

	cfg, err := config.Load("pharmacover-gridsearch")
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout stays valid JSON.
	logger := logging.New(cmd.ErrOrStderr(), "", cfg.Log.Level, "text")

	client, err := newPlacesClient(cfg, logger)
	if err != nil {
		return err
	}
	grid := gridsearch.New(
		gridsearch.WithConcurrency(cfg.Search.Concurrency),
		gridsearch.WithCellTimeout(cfg.Search.CellTimeout),
		gridsearch.WithLogger(logger),
	)

	res, err := grid.SearchAreaWithProgress(ctx, box, policy, client, func(p gridsearch.Progress) {
		if p.Err != nil {
			logger.Warn("cell failed", "done", p.Done, "total", p.Total, "error", p.Err)
			return
		}
		logger.Info("cell done", "done", p.Done, "total", p.Total, "places", p.Places)
	})
	if err != nil {
		return err
	}

	report := struct {
		*domain.SearchResult
		Coverage *domain.CoverageReport `json:"coverage,omitempty"`
	}{SearchResult: res}

	if opts.coverage {
		report.Coverage, err = coverage.NewAnalyzer(0, 0, 0).Gaps(ctx, box, res.Places)
		if err != nil {
			return err
		}
	}
	logger.Info("search finished", "places", len(res.Places), "requests", res.TotalRequests)
	return out.Encode(report)
}

// newPlacesClient fails fast on a missing key, which the API would otherwise
// reject cell by cell.
func newPlacesClient(cfg *config.Config, logger *slog.Logger) (*places.Client, error) {
	if cfg.Places.APIKey == "" {
		return nil, errMissingAPIKey
	}
	return places.NewClient(places.Options{
		APIKey:            cfg.Places.APIKey,
		BaseURL:           cfg.Places.BaseURL,
		HTTPClient:        &http.Client{Timeout: cfg.Places.Timeout},
		IncludedTypes:     cfg.Places.IncludedTypes,
		MaxResultCount:    cfg.Places.MaxResultCount,
		PageDelay:         cfg.Places.PageDelay,
		RequestsPerSecond: cfg.Places.RequestsPerSecond,
		Logger:            logger,
	}), nil
}
