package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/service/mappers"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

const defaultLogLimit = 500

// JobService is the operator's view on jobs: inspection, cancellation and
// manual retry. Device-side reporting goes through DeviceGatewayService.
type JobService struct {
	store    store.Store
	notifier events.Notifier
}

func NewJobService(store store.Store, notifier events.Notifier) *JobService {
	return &JobService{
		store:    store,
		notifier: notifier,
	}
}

func (s *JobService) ListJobs(ctx context.Context, filter *store.JobQueryFilter) ([]api.Job, error) {
	if filter == nil {
		filter = store.NewJobQueryFilter()
	}
	jobs, err := s.store.Job().List(ctx, filter,
		store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		return nil, err
	}
	return mappers.JobListToApi(jobs), nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.store.Job().GetFull(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	result := mappers.JobToApi(*job)
	return &result, nil
}

func (s *JobService) GetJobLogs(ctx context.Context, id uuid.UUID, limit int) ([]api.JobLogEntry, error) {
	if _, err := s.store.Job().Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	logs, err := s.store.JobLog().List(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return mappers.LogListToApi(logs), nil
}

// CancelJob cancels undelivered jobs immediately. A running job keeps its
// status and only receives a stop request; the device reports the final
// state.
func (s *JobService) CancelJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if model.JobStatusTerminal(job.Status) {
		return nil, NewErrJobStatusConflict(id, job.Status)
	}

	if job.Status == model.JobStatusRunning {
		s.notifier.StopRequested(ctx, job)
		if err := s.store.JobLog().Add(ctx, model.JobLog{
			JobID:   id,
			Level:   "warn",
			Message: "stop requested by operator",
		}); err != nil {
			zap.S().Named("job_service").Errorw("failed to append job log", "error", err, "job_id", id)
		}
		result := mappers.JobToApi(*job)
		return &result, nil
	}

	updated, err := s.store.Job().UpdateStatusIf(ctx, id,
		[]string{model.JobStatusPending, model.JobStatusQueued},
		model.JobStatusCancelled, map[string]any{"completed_at": time.Now()})
	if err != nil {
		if errors.Is(err, store.ErrConcurrentUpdate) {
			current, gerr := s.store.Job().Get(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			return nil, NewErrJobStatusConflict(id, current.Status)
		}
		return nil, err
	}
	if err := s.store.JobLog().Add(ctx, model.JobLog{
		JobID:   id,
		Level:   "warn",
		Message: "job cancelled by operator",
	}); err != nil {
		zap.S().Named("job_service").Errorw("failed to append job log", "error", err, "job_id", id)
	}

	s.notifier.JobStatusChanged(ctx, updated, "cancelled by operator")
	result := mappers.JobToApi(*updated)
	return &result, nil
}

// RetryJob requeues a failed job by hand. Unlike the automatic retry path it
// does not consume the retry budget: the operator is overriding the policy,
// not spending it. Skipped work un-skips, failed work rewinds, completed
// work stands.
func (s *JobService) RetryJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if job.Status != model.JobStatusFailed {
		return nil, NewErrJobStatusConflict(id, job.Status)
	}

	tasks, err := s.store.JobTask().ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}

	perItem := map[uuid.UUID]store.JobCounterDeltas{}
	jobDeltas := store.JobCounterDeltas{}
	var resetIDs []uuid.UUID
	for i := range tasks {
		task := &tasks[i]
		var delta store.JobCounterDeltas
		switch task.Status {
		case model.TaskStatusFailed:
			delta.FailedTasks = -1
		case model.TaskStatusSkipped:
			delta.SkippedTasks = -1
		default:
			continue
		}
		resetIDs = append(resetIDs, task.ID)
		jobDeltas.FailedTasks += delta.FailedTasks
		jobDeltas.SkippedTasks += delta.SkippedTasks
		if task.ItemID != nil {
			d := perItem[*task.ItemID]
			d.FailedTasks += delta.FailedTasks
			d.SkippedTasks += delta.SkippedTasks
			perItem[*task.ItemID] = d
		}
	}
	if len(resetIDs) == 0 {
		return nil, NewErrValidation("job %s has no failed or skipped tasks to retry", id)
	}

	if err := s.store.JobTask().ResetToPending(ctx, resetIDs); err != nil {
		return nil, err
	}

	// Items skipped before their tasks materialized carry no task rows, so
	// the reset has to walk the items themselves.
	items, err := s.store.JobItem().ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range items {
		item := &items[i]
		if deltas, ok := perItem[item.ID]; ok {
			if err := s.store.JobItem().IncrementCounters(ctx, item.ID, deltas); err != nil {
				return nil, err
			}
		}
		if _, err := s.store.JobItem().UpdateStatusIf(ctx, item.ID,
			[]string{model.TaskStatusFailed, model.TaskStatusSkipped},
			model.TaskStatusPending, map[string]any{"completed_at": nil}); err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
			return nil, err
		}
	}
	if job.TotalRecordsToProcess > 0 && job.RecordsFailed > 0 {
		jobDeltas.RecordsFailed = -1
	}
	if err := s.store.Job().IncrementCounters(ctx, id, jobDeltas); err != nil {
		return nil, err
	}

	updated, err := s.store.Job().UpdateStatusIf(ctx, id,
		[]string{model.JobStatusFailed},
		model.JobStatusQueued, map[string]any{
			"error_message": "",
			"completed_at":  nil,
		})
	if err != nil {
		return nil, err
	}
	if err := s.store.JobLog().Add(ctx, model.JobLog{
		JobID:   id,
		Level:   "info",
		Message: "job requeued by operator",
	}); err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.JobNew(ctx, updated)
	result := mappers.JobToApi(*updated)
	return &result, nil
}
