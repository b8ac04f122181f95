package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
)

// Application error types reported by the activities.
const (
	ErrTypeNoResults           = "NoResults"
	ErrTypeInsufficientCredits = "InsufficientCredits"
	ErrTypeInvalidInput        = "InvalidInput"
	ErrTypeConflict            = "Conflict"
	ErrTypeNotFound            = "NotFound"
)

// Activities holds the activity implementations of AreaSearchWorkflow.
type Activities struct {
	Searches *usecases.SearchService
}

// SearchAndSave runs the grid search, adds the spent requests to the user's
// counter and saves the result. The places stay in the database: the returned
// record carries none, so the workflow history holds only counts whatever the
// size of the area. An empty result is counted but not saved (NoResults).
func (a *Activities) SearchAndSave(ctx context.Context, in AreaSearchInput) (*domain.SearchRecord, error) {
	res, err := a.Searches.Execute(ctx, in.Principal, in.SearchID, in.Request)
	if err != nil {
		return nil, applicationError(err)
	}

	if err := a.Searches.RecordRequests(ctx, in.Principal, res.TotalRequests); err != nil {
		slog.Warn("failed to record request count",
			"search_id", in.SearchID, "requests", res.TotalRequests, "error", err)
	}
	if len(res.Places) == 0 {
		return nil, applicationError(domain.ErrNoResults)
	}

	rec, err := a.Searches.Save(ctx, in.Principal, in.SearchID, in.Request, res)
	if err != nil {
		return nil, applicationError(err)
	}
	slim := *rec
	slim.Places = nil
	return &slim, nil
}

// ChargeCredits deducts the search cost.
func (a *Activities) ChargeCredits(ctx context.Context, p domain.Principal) error {
	return applicationError(a.Searches.Charge(ctx, p))
}

// DiscardSearch deletes a saved record whose charge failed (saga compensation).
func (a *Activities) DiscardSearch(ctx context.Context, searchID string) error {
	if err := a.Searches.Discard(ctx, searchID); err != nil {
		return fmt.Errorf("discard search %s: %w", searchID, err)
	}
	return nil
}

// AnnounceSearch publishes search.completed.
func (a *Activities) AnnounceSearch(ctx context.Context, rec *domain.SearchRecord) error {
	a.Searches.Announce(ctx, rec)
	return nil
}

// applicationError marks domain failures as non-retryable; infrastructure
// errors are returned as-is and retried by policy.
func applicationError(err error) error {
	if err == nil {
		return nil
	}
	var errType string
	switch {
	case errors.Is(err, domain.ErrNoResults):
		errType = ErrTypeNoResults
	case errors.Is(err, domain.ErrInsufficientCredits):
		errType = ErrTypeInsufficientCredits
	case errors.Is(err, domain.ErrInvalidRegion),
		errors.Is(err, domain.ErrInvalidPolicy),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrAreaTooLarge):
		errType = ErrTypeInvalidInput
	case errors.Is(err, domain.ErrSearchNameTaken):
		errType = ErrTypeConflict
	case errors.Is(err, domain.ErrNotFound):
		errType = ErrTypeNotFound
	default:
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}
