package workflows_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
	"github.com/samirrijal/pharmacover/internal/workflows"
)

var input = workflows.AreaSearchInput{
	SearchID:  "s-1",
	Principal: domain.Principal{Username: "omar"},
	Request: usecases.SearchRequest{
		Name:   "Maarif",
		Box:    domain.BoundingBox{LatMin: 33.50, LatMax: 33.515, LonMin: -7.60, LonMax: -7.585},
		Policy: domain.PresetFast,
	},
}

func newEnv() *testsuite.TestWorkflowEnvironment {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&workflows.Activities{})
	return env
}

func saved() *domain.SearchRecord {
	return &domain.SearchRecord{ID: "s-1", Name: "Maarif", UserID: "omar", PlaceCount: 1, TotalRequests: 4, Cells: 4}
}

func TestAreaSearchWorkflow_SavesAndCharges(t *testing.T) {
	env := newEnv()
	var a *workflows.Activities

	env.OnActivity(a.SearchAndSave, mock.Anything, mock.Anything).Return(saved(), nil)
	env.OnActivity(a.ChargeCredits, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.AnnounceSearch, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(workflows.AreaSearchWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var rec domain.SearchRecord
	require.NoError(t, env.GetWorkflowResult(&rec))
	assert.Equal(t, "s-1", rec.ID)
	assert.Equal(t, 1, rec.PlaceCount)
	env.AssertExpectations(t)
	env.AssertActivityNumberOfCalls(t, "DiscardSearch", 0)
}

func TestAreaSearchWorkflow_ChargeFailureDiscards(t *testing.T) {
	env := newEnv()
	var a *workflows.Activities

	env.OnActivity(a.SearchAndSave, mock.Anything, mock.Anything).Return(saved(), nil)
	env.OnActivity(a.ChargeCredits, mock.Anything, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("insufficient credits", workflows.ErrTypeInsufficientCredits, nil))
	env.OnActivity(a.DiscardSearch, mock.Anything, "s-1").Return(nil).Once()

	env.ExecuteWorkflow(workflows.AreaSearchWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, workflows.ErrTypeInsufficientCredits, appErr.Type())
	env.AssertExpectations(t)
	env.AssertActivityNumberOfCalls(t, "AnnounceSearch", 0)
}

func TestAreaSearchWorkflow_NoResultsIsNotCharged(t *testing.T) {
	env := newEnv()
	var a *workflows.Activities

	env.OnActivity(a.SearchAndSave, mock.Anything, mock.Anything).
		Return(nil, temporal.NewNonRetryableApplicationError(domain.ErrNoResults.Error(), workflows.ErrTypeNoResults, nil))

	env.ExecuteWorkflow(workflows.AreaSearchWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(env.GetWorkflowError(), &appErr))
	assert.Equal(t, workflows.ErrTypeNoResults, appErr.Type())
	env.AssertActivityNumberOfCalls(t, "ChargeCredits", 0)
	env.AssertActivityNumberOfCalls(t, "AnnounceSearch", 0)
}

func TestAreaSearchWorkflow_SearchFailureStops(t *testing.T) {
	env := newEnv()
	var a *workflows.Activities

	env.OnActivity(a.SearchAndSave, mock.Anything, mock.Anything).
		Return(nil, errors.New("area search interrupted: context deadline exceeded"))

	env.ExecuteWorkflow(workflows.AreaSearchWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertActivityNumberOfCalls(t, "SearchAndSave", 1)
	env.AssertActivityNumberOfCalls(t, "ChargeCredits", 0)
}
