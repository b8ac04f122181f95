package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
)

// DefaultSearchTimeout bounds the SearchAndSave activity when the input sets none.
const DefaultSearchTimeout = 30 * time.Minute

// AreaSearchInput is the input of AreaSearchWorkflow.
type AreaSearchInput struct {
	SearchID  string
	Principal domain.Principal
	Request   usecases.SearchRequest
	// Timeout bounds the grid search itself.
	Timeout time.Duration
}

// AreaSearchWorkflow runs a preflighted search durably: grid search with request
// accounting and save, then charge. If the charge fails the saved record is
// deleted again (saga compensation).
func AreaSearchWorkflow(ctx workflow.Context, in AreaSearchInput) (*domain.SearchRecord, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting area search workflow", "searchID", in.SearchID, "user", in.Principal.Username)

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	// Re-running a grid search spends upstream quota, so it is never retried.
	searchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	stepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
	// A deduction is not idempotent.
	chargeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var rec domain.SearchRecord
	if err := workflow.ExecuteActivity(searchCtx, "SearchAndSave", in).Get(ctx, &rec); err != nil {
		return nil, err
	}

	if err := workflow.ExecuteActivity(chargeCtx, "ChargeCredits", in.Principal).Get(ctx, nil); err != nil {
		logger.Warn("charge failed, compensating", "error", err)
		if derr := workflow.ExecuteActivity(stepCtx, "DiscardSearch", in.SearchID).Get(ctx, nil); derr != nil {
			logger.Error("discarding unpaid search failed", "error", derr)
		}
		return nil, err
	}

	_ = workflow.ExecuteActivity(stepCtx, "AnnounceSearch", &rec).Get(ctx, nil)

	logger.Info("Area search saved", "searchID", rec.ID, "places", rec.PlaceCount)
	return &rec, nil
}
