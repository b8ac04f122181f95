// Package app assembles the service graph shared by the API server and the
// search worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	natsadapter "github.com/samirrijal/pharmacover/internal/adapters/nats"
	"github.com/samirrijal/pharmacover/internal/adapters/places"
	"github.com/samirrijal/pharmacover/internal/adapters/postgres"
	"github.com/samirrijal/pharmacover/internal/adapters/valkey"
	"github.com/samirrijal/pharmacover/internal/core/coverage"
	"github.com/samirrijal/pharmacover/internal/core/gridsearch"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
	"github.com/samirrijal/pharmacover/internal/pkg/config"
)

// Stack holds the connected adapters and the services built on them.
// Cache and Publisher are nil when their backends are unreachable.
type Stack struct {
	DB        *postgres.DB
	Cache     *valkey.Cache
	Publisher *natsadapter.Publisher
	Users     *usecases.UserService
	Searches  *usecases.SearchService
}

// Build connects to postgres (required), valkey and NATS (both optional) and
// wires the search and user services.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	st := &Stack{DB: db}

	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		logger.Warn("valkey unavailable, cell cache disabled", "error", err)
	} else {
		st.Cache = cache
	}

	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		logger.Warn("nats unavailable, search events disabled", "error", err)
	} else {
		st.Publisher = pub
	}

	client := places.NewClient(places.Options{
		APIKey:            cfg.Places.APIKey,
		BaseURL:           cfg.Places.BaseURL,
		HTTPClient:        &http.Client{Timeout: cfg.Places.Timeout},
		IncludedTypes:     cfg.Places.IncludedTypes,
		MaxResultCount:    cfg.Places.MaxResultCount,
		PageDelay:         cfg.Places.PageDelay,
		RequestsPerSecond: cfg.Places.RequestsPerSecond,
		Logger:            logger,
	})
	if cfg.Places.APIKey == "" {
		logger.Warn("places.api_key is empty; upstream calls will be rejected")
	}

	var points ports.PointSearcher = client
	if st.Cache != nil && cfg.Search.CacheTTL > 0 {
		points = places.NewCachedSearcher(client, st.Cache, cfg.Search.CacheTTL, client.IncludedTypes())
	}

	var events ports.EventPublisher
	if st.Publisher != nil {
		events = st.Publisher
	}

	users := postgres.NewUserRepo(db)
	searches := postgres.NewSearchRepo(db)

	grid := gridsearch.New(
		gridsearch.WithConcurrency(cfg.Search.Concurrency),
		gridsearch.WithCellTimeout(cfg.Search.CellTimeout),
		gridsearch.WithLogger(logger),
	)

	st.Users = usecases.NewUserService(users, searches, usecases.UserConfig{
		AdminUser:         cfg.Auth.AdminUser,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		InitialCredits:    cfg.Auth.InitialCredits,
	})
	st.Searches = usecases.NewSearchService(searches, users, grid, points, events,
		coverage.NewAnalyzer(0, 0, 0),
		usecases.SearchConfig{MaxAreaKm2: cfg.Search.MaxAreaKm2, Timeout: cfg.Search.SearchTimeout},
	)
	return st, nil
}

// Close releases every connection the stack opened.
func (s *Stack) Close() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Cache != nil {
		s.Cache.Close()
	}
	s.DB.Close()
}
