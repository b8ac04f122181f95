package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
)

// WorkflowID derives the workflow id of a search, so a search id runs at most once.
func WorkflowID(searchID string) string { return "area-search-" + searchID }

// Register adds the workflow and its activities to a worker.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(AreaSearchWorkflow)
	r.RegisterActivity(acts)
}

// Starter launches area search workflows on a task queue.
type Starter struct {
	client    client.Client
	taskQueue string
	timeout   time.Duration
}

// NewStarter creates a Starter. timeout bounds each grid search.
func NewStarter(c client.Client, taskQueue string, timeout time.Duration) *Starter {
	return &Starter{client: c, taskQueue: taskQueue, timeout: timeout}
}

// StartAreaSearch starts the workflow and returns its run id without waiting.
func (s *Starter) StartAreaSearch(ctx context.Context, p domain.Principal, searchID string, req usecases.SearchRequest) (string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(searchID),
		TaskQueue: s.taskQueue,
	}, AreaSearchWorkflow, AreaSearchInput{
		SearchID:  searchID,
		Principal: p,
		Request:   req,
		Timeout:   s.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("start workflow: %w", err)
	}
	return run.GetRunID(), nil
}
