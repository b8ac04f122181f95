package workflows_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/pharmacover/internal/core/coverage"
	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/gridsearch"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
	"github.com/samirrijal/pharmacover/internal/workflows"
)

type countingUsers struct {
	requests map[string]int
}

func (u *countingUsers) Create(context.Context, *domain.User) error             { return nil }
func (u *countingUsers) UpsertAdmin(context.Context, string, string) error      { return nil }
func (u *countingUsers) Get(context.Context, string) (*domain.User, error)      { return nil, domain.ErrNotFound }
func (u *countingUsers) List(context.Context) ([]domain.User, error)            { return nil, nil }
func (u *countingUsers) Delete(context.Context, string) error                   { return nil }
func (u *countingUsers) SetCredits(context.Context, string, int) error          { return nil }
func (u *countingUsers) DeductCredits(context.Context, string, int) error       { return nil }
func (u *countingUsers) AddRequests(_ context.Context, username string, n int) error {
	u.requests[username] += n
	return nil
}

type savedSearches map[string]*domain.SearchRecord

func (m savedSearches) Create(_ context.Context, rec *domain.SearchRecord) error {
	m[rec.ID] = rec
	return nil
}
func (m savedSearches) GetByID(_ context.Context, id string) (*domain.SearchRecord, error) {
	if r, ok := m[id]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}
func (m savedSearches) List(context.Context, string, int, int) ([]domain.SearchRecord, int, error) {
	return nil, 0, nil
}
func (m savedSearches) NameExists(context.Context, string, string) (bool, error) { return false, nil }
func (m savedSearches) Delete(context.Context, string) error                     { return nil }
func (m savedSearches) DeleteByUser(context.Context, string) error               { return nil }
func (m savedSearches) SumRequests(context.Context) (int, error)                 { return 0, nil }

func newActivities(points ports.PointSearcher) (*workflows.Activities, *countingUsers, savedSearches) {
	users := &countingUsers{requests: map[string]int{}}
	searches := savedSearches{}
	grid := gridsearch.New(gridsearch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	svc := usecases.NewSearchService(searches, users, grid, points, nil,
		coverage.NewAnalyzer(0, 0, 0), usecases.SearchConfig{MaxAreaKm2: 4})
	return &workflows.Activities{Searches: svc}, users, searches
}

func TestSearchAndSave_ReturnsRecordWithoutPlaces(t *testing.T) {
	acts, users, searches := newActivities(ports.PointSearchFunc(func(_ context.Context, c domain.GeoPoint, _ float64) ([]domain.Place, int, error) {
		return []domain.Place{{Name: "Pharmacie", Latitude: c.Lat, Longitude: c.Lon}}, 1, nil
	}))

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.SearchAndSave, input)
	require.NoError(t, err)

	var rec domain.SearchRecord
	require.NoError(t, val.Get(&rec))
	assert.Equal(t, "s-1", rec.ID)
	assert.Equal(t, 4, rec.PlaceCount)
	assert.Empty(t, rec.Places)

	// The full result is in the repository only.
	require.Contains(t, searches, "s-1")
	assert.Len(t, searches["s-1"].Places, 4)
	assert.Equal(t, 4, users.requests["omar"])
}

func TestSearchAndSave_NoResultsCountsRequests(t *testing.T) {
	acts, users, searches := newActivities(ports.PointSearchFunc(func(context.Context, domain.GeoPoint, float64) ([]domain.Place, int, error) {
		return nil, 1, nil
	}))

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.SearchAndSave, input)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "got %v", err)
	assert.Equal(t, workflows.ErrTypeNoResults, appErr.Type())
	assert.Empty(t, searches)
	assert.Equal(t, 4, users.requests["omar"])
}
