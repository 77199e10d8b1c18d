package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type Decision int

const (
	DecisionComplete Decision = iota
	DecisionRetry
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionComplete:
		return "complete"
	case DecisionRetry:
		return "retry"
	default:
		return "fail"
	}
}

// RetryPolicy decides what happens when a job's active scope (one chain item,
// or the whole task set of a single-flow job) has no open tasks left.
type RetryPolicy struct {
	store store.Store
}

func NewRetryPolicy(s store.Store) *RetryPolicy {
	return &RetryPolicy{store: s}
}

// Decide is counter-driven: skipped tasks never count against the scope, and
// the retry budget belongs to the job, not to individual tasks.
func (p *RetryPolicy) Decide(job *model.WorkflowJob, failedInScope int) Decision {
	if failedInScope == 0 {
		return DecisionComplete
	}
	if job.RetryCount < job.MaxRetries {
		return DecisionRetry
	}
	return DecisionFail
}

// Requeue consumes one retry: only the scope's failed tasks rewind to
// pending, completed and skipped work stands, and the job drops back to
// queued for the device to claim again.
func (p *RetryPolicy) Requeue(ctx context.Context, job *model.WorkflowJob, item *model.JobWorkflowItem) (*model.WorkflowJob, error) {
	var tasks model.JobTaskList
	var err error
	if item != nil {
		tasks, err = p.store.JobTask().ListByItem(ctx, item.ID)
	} else {
		tasks, err = p.store.JobTask().ListByJob(ctx, job.ID)
	}
	if err != nil {
		return nil, err
	}

	var failedIDs []uuid.UUID
	for i := range tasks {
		if tasks[i].Status == model.TaskStatusFailed {
			failedIDs = append(failedIDs, tasks[i].ID)
		}
	}
	if len(failedIDs) > 0 {
		if err := p.store.JobTask().ResetToPending(ctx, failedIDs); err != nil {
			return nil, err
		}
		rewind := store.JobCounterDeltas{FailedTasks: -len(failedIDs)}
		if item != nil {
			if err := p.store.JobItem().IncrementCounters(ctx, item.ID, rewind); err != nil {
				return nil, err
			}
		}
		if err := p.store.Job().IncrementCounters(ctx, job.ID, rewind); err != nil {
			return nil, err
		}
	}

	if item != nil {
		_, err := p.store.JobItem().UpdateStatusIf(ctx, item.ID,
			[]string{model.TaskStatusRunning, model.TaskStatusFailed},
			model.TaskStatusPending, nil)
		if err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
			return nil, err
		}
	}

	updated, err := p.store.Job().UpdateStatusIf(ctx, job.ID,
		[]string{model.JobStatusQueued, model.JobStatusRunning},
		model.JobStatusQueued, map[string]any{
			"retry_count":   job.RetryCount + 1,
			"error_message": "",
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
