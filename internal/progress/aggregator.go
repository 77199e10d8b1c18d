package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/dispatch"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
)

var ErrUnknownTaskStatus = errors.New("unknown task status")

// Aggregator folds device progress reports into job state. Devices report
// best-effort over flaky links, so every handler tolerates duplicates and
// out-of-order arrival: status rows only move forward, terminal reports
// degrade to log entries, and roll-up counters are driven by row transitions
// rather than by report counts.
type Aggregator struct {
	store    store.Store
	notifier events.Notifier
	chain    *dispatch.ChainExecutor
	retry    *dispatch.RetryPolicy
}

func NewAggregator(s store.Store, n events.Notifier) *Aggregator {
	return &Aggregator{
		store:    s,
		notifier: n,
		chain:    dispatch.NewChainExecutor(s),
		retry:    dispatch.NewRetryPolicy(s),
	}
}

// HandleStarted moves a claimed job to running. A duplicate start is a
// logged no-op.
func (a *Aggregator) HandleStarted(ctx context.Context, jobID uuid.UUID) (*model.WorkflowJob, error) {
	ctx, err := a.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := a.store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if model.JobStatusTerminal(job.Status) {
		return a.ignore(ctx, job, nil, fmt.Sprintf("start report ignored: job already %s", job.Status))
	}
	if job.Status == model.JobStatusRunning {
		return a.ignore(ctx, job, nil, "duplicate start report ignored")
	}

	now := time.Now()
	job, err = a.store.Job().UpdateStatusIf(ctx, jobID,
		[]string{model.JobStatusQueued},
		model.JobStatusRunning, map[string]any{"started_at": now})
	if err != nil {
		return nil, err
	}

	item, err := a.chain.ActiveItem(ctx, job)
	if err != nil {
		return nil, err
	}
	if item != nil && item.Status == model.TaskStatusPending {
		if _, err := a.store.JobItem().UpdateStatusIf(ctx, item.ID,
			[]string{model.TaskStatusPending},
			model.TaskStatusRunning, map[string]any{"started_at": now}); err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
			return nil, err
		}
	}

	a.appendLog(ctx, job.ID, nil, "info", "job started on device", map[string]any{"device_id": job.DeviceID.String()})

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	a.notifier.JobStatusChanged(ctx, job, "started")
	return job, nil
}

// HandleTaskReport applies one task-level progress report, then checks
// whether the report closed out the active scope.
func (a *Aggregator) HandleTaskReport(ctx context.Context, jobID uuid.UUID, nodeID string, report api.TaskProgressRequest) (*model.WorkflowJob, error) {
	status, err := normalizeTaskStatus(report.Status)
	if err != nil {
		return nil, err
	}
	metrics.IncreaseTaskReportsMetric(status)

	ctx, err = a.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := a.store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if model.JobStatusTerminal(job.Status) {
		return a.ignore(ctx, job, nil, fmt.Sprintf("report for task %s ignored: job already %s", nodeID, job.Status))
	}

	item, err := a.chain.ActiveItem(ctx, job)
	if err != nil {
		return nil, err
	}
	var itemID *uuid.UUID
	if item != nil {
		itemID = &item.ID
	}

	task, err := a.store.JobTask().GetByNode(ctx, jobID, itemID, nodeID)
	if err != nil {
		return nil, err
	}
	if model.TaskStatusTerminal(task.Status) {
		return a.ignore(ctx, job, &task.ID, fmt.Sprintf("report for task %s ignored: already %s", nodeID, task.Status))
	}

	now := time.Now()
	reason := ""
	switch status {
	case model.TaskStatusRunning:
		if _, err := a.store.JobTask().UpdateStatusIf(ctx, task.ID,
			[]string{model.TaskStatusPending},
			model.TaskStatusRunning, map[string]any{"started_at": now}); err != nil {
			if errors.Is(err, store.ErrConcurrentUpdate) {
				return a.ignore(ctx, job, &task.ID, fmt.Sprintf("duplicate running report for task %s ignored", nodeID))
			}
			return nil, err
		}
		if item != nil && item.Status == model.TaskStatusPending {
			if _, err := a.store.JobItem().UpdateStatusIf(ctx, item.ID,
				[]string{model.TaskStatusPending},
				model.TaskStatusRunning, map[string]any{"started_at": now}); err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
				return nil, err
			}
		}
		if job.Status != model.JobStatusRunning {
			updated, err := a.store.Job().UpdateStatusIf(ctx, job.ID,
				[]string{model.JobStatusPending, model.JobStatusQueued},
				model.JobStatusRunning, map[string]any{"started_at": now})
			if err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
				return nil, err
			}
			if updated != nil {
				job = updated
				reason = "started"
			}
		}
		a.appendLog(ctx, job.ID, &task.ID, "info", fmt.Sprintf("task %s running", nodeID), nil)

	default:
		set := map[string]any{"completed_at": now}
		if report.DurationMs > 0 {
			set["duration_ms"] = report.DurationMs
		}
		if report.OutputData != nil {
			set["output_data"] = model.MakeJSONField(report.OutputData)
		}
		if report.ErrorMessage != "" {
			set["error_message"] = report.ErrorMessage
		}
		if _, err := a.store.JobTask().UpdateStatusIf(ctx, task.ID,
			[]string{model.TaskStatusPending, model.TaskStatusRunning},
			status, set); err != nil {
			if errors.Is(err, store.ErrConcurrentUpdate) {
				return a.ignore(ctx, job, &task.ID, fmt.Sprintf("stale report for task %s ignored", nodeID))
			}
			return nil, err
		}

		deltas := taskDeltas(status)
		if item != nil {
			if err := a.store.JobItem().IncrementCounters(ctx, item.ID, deltas); err != nil {
				return nil, err
			}
		}
		if err := a.store.Job().IncrementCounters(ctx, job.ID, deltas); err != nil {
			return nil, err
		}

		logContext := map[string]any{"node_id": nodeID, "status": string(status)}
		if report.ErrorMessage != "" {
			logContext["error"] = report.ErrorMessage
		}
		if report.Reason != "" {
			logContext["reason"] = report.Reason
		}
		level := "info"
		if status == model.TaskStatusFailed {
			level = "error"
		}
		a.appendLog(ctx, job.ID, &task.ID, level, fmt.Sprintf("task %s %s", nodeID, status), logContext)

		job, reason, err = a.settleScope(ctx, job, item)
		if err != nil {
			return nil, err
		}
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	if reason != "" {
		a.notifier.JobStatusChanged(ctx, job, reason)
	}
	return job, nil
}

// HandleCompletion applies a device's whole-job verdict. On success any
// still-open work is skipped and the job completes now; on failure the open
// tasks of the active scope fail and the retry policy has the last word.
func (a *Aggregator) HandleCompletion(ctx context.Context, jobID uuid.UUID, report api.CompletionRequest) (*model.WorkflowJob, error) {
	ctx, err := a.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := a.store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if model.JobStatusTerminal(job.Status) {
		return a.ignore(ctx, job, nil, fmt.Sprintf("completion report ignored: job already %s", job.Status))
	}

	item, err := a.chain.ActiveItem(ctx, job)
	if err != nil {
		return nil, err
	}

	var reason string
	if report.Success {
		job, err = a.completeOnDeviceVerdict(ctx, job, item, report)
		reason = "completed"
	} else {
		job, reason, err = a.failOnDeviceVerdict(ctx, job, item, report)
	}
	if err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	a.notifier.JobStatusChanged(ctx, job, reason)
	return job, nil
}

// settleScope runs once the active scope might be exhausted: when every task
// in it is terminal the retry policy decides, and on a clean pass the job
// advances through its chain and records until nothing is left.
func (a *Aggregator) settleScope(ctx context.Context, job *model.WorkflowJob, item *model.JobWorkflowItem) (*model.WorkflowJob, string, error) {
	job, err := a.store.Job().Get(ctx, job.ID)
	if err != nil {
		return nil, "", err
	}

	var total, settled, failed int
	if item != nil {
		item, err = a.store.JobItem().Get(ctx, item.ID)
		if err != nil {
			return nil, "", err
		}
		total = item.TotalTasks
		settled = item.CompletedTasks + item.FailedTasks + item.SkippedTasks
		failed = item.FailedTasks
	} else {
		total = job.TotalTasks
		settled = job.CompletedTasks + job.FailedTasks + job.SkippedTasks
		failed = job.FailedTasks
	}
	if total == 0 || settled < total {
		return job, "", nil
	}

	switch a.retry.Decide(job, failed) {
	case dispatch.DecisionRetry:
		job, err = a.retry.Requeue(ctx, job, item)
		if err != nil {
			return nil, "", err
		}
		a.appendLog(ctx, job.ID, nil, "warn",
			fmt.Sprintf("retrying %d failed task(s), attempt %d of %d", failed, job.RetryCount, job.MaxRetries), nil)
		return job, "retrying failed tasks", nil

	case dispatch.DecisionFail:
		job, err = a.failJob(ctx, job, item, a.scopeFailureMessage(ctx, job, item, failed))
		if err != nil {
			return nil, "", err
		}
		return job, "retries exhausted", nil

	default:
		return a.advance(ctx, job, item)
	}
}

// advance closes a cleanly finished scope and moves on: next chain item,
// else next data record, else the job completes.
func (a *Aggregator) advance(ctx context.Context, job *model.WorkflowJob, item *model.JobWorkflowItem) (*model.WorkflowJob, string, error) {
	now := time.Now()
	if item != nil {
		if _, err := a.store.JobItem().UpdateStatusIf(ctx, item.ID,
			[]string{model.TaskStatusPending, model.TaskStatusRunning},
			model.TaskStatusCompleted, map[string]any{"completed_at": now}); err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
			return nil, "", err
		}

		advanced, moved, err := a.chain.Advance(ctx, job, item)
		if err != nil {
			return nil, "", err
		}
		if moved {
			a.appendLog(ctx, job.ID, nil, "info",
				fmt.Sprintf("chain advanced to step %d", advanced.CurrentChainIndex), nil)
			return advanced, "chain advanced", nil
		}
	}

	records := job.RecordIDs()
	if len(records) > 0 && job.CurrentRecordIndex+1 < len(records) {
		moved, err := a.chain.NextRecord(ctx, job)
		if err != nil {
			return nil, "", err
		}
		a.appendLog(ctx, job.ID, nil, "info",
			fmt.Sprintf("advancing to record %d of %d", moved.CurrentRecordIndex+1, len(records)), nil)
		return moved, "next record", nil
	}

	set := map[string]any{"completed_at": now}
	if len(records) > 0 {
		set["records_processed"] = job.RecordsProcessed + 1
	}
	job, err := a.store.Job().UpdateStatusIf(ctx, job.ID,
		[]string{model.JobStatusQueued, model.JobStatusRunning},
		model.JobStatusCompleted, set)
	if err != nil {
		return nil, "", err
	}
	a.appendLog(ctx, job.ID, nil, "info", "job completed", nil)
	return job, "completed", nil
}

// failJob terminates the job after the retry budget is spent or the device
// gave a final failure verdict. Remaining chain items are skipped, never
// failed: they did not run.
func (a *Aggregator) failJob(ctx context.Context, job *model.WorkflowJob, item *model.JobWorkflowItem, errorMessage string) (*model.WorkflowJob, error) {
	now := time.Now()
	if item != nil {
		if _, err := a.store.JobItem().UpdateStatusIf(ctx, item.ID,
			[]string{model.TaskStatusPending, model.TaskStatusRunning},
			model.TaskStatusFailed, map[string]any{"completed_at": now}); err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
			return nil, err
		}
		if _, err := a.chain.SkipRemaining(ctx, job.ID, item.Sequence); err != nil {
			return nil, err
		}
	}

	set := map[string]any{"completed_at": now, "error_message": errorMessage}
	if job.TotalRecordsToProcess > 0 {
		set["records_failed"] = job.RecordsFailed + 1
	}
	job, err := a.store.Job().UpdateStatusIf(ctx, job.ID,
		[]string{model.JobStatusPending, model.JobStatusQueued, model.JobStatusRunning},
		model.JobStatusFailed, set)
	if err != nil {
		return nil, err
	}
	a.appendLog(ctx, job.ID, nil, "error", "job failed", map[string]any{"error": errorMessage})
	return job, nil
}

// completeOnDeviceVerdict closes out a job the device declared successful.
// Open tasks and chain items are skipped, not completed: the device chose
// not to run them and the counters should say so.
func (a *Aggregator) completeOnDeviceVerdict(ctx context.Context, job *model.WorkflowJob, item *model.JobWorkflowItem, report api.CompletionRequest) (*model.WorkflowJob, error) {
	now := time.Now()
	deltas := store.JobCounterDeltas{}

	if item == nil {
		closed, err := a.store.JobTask().CloseOpen(ctx, job.ID, nil, model.TaskStatusSkipped, "")
		if err != nil {
			return nil, err
		}
		deltas.SkippedTasks += int(closed)
	} else {
		items, err := a.store.JobItem().ListByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		for i := range items {
			it := &items[i]
			closed, err := a.store.JobTask().CloseOpen(ctx, job.ID, &it.ID, model.TaskStatusSkipped, "")
			if err != nil {
				return nil, err
			}
			if closed > 0 {
				if err := a.store.JobItem().IncrementCounters(ctx, it.ID, store.JobCounterDeltas{SkippedTasks: int(closed)}); err != nil {
					return nil, err
				}
				deltas.SkippedTasks += int(closed)
			}
			if model.TaskStatusTerminal(it.Status) {
				continue
			}
			to := model.TaskStatusSkipped
			if it.Sequence == item.Sequence {
				to = model.TaskStatusCompleted
			}
			if _, err := a.store.JobItem().UpdateStatusIf(ctx, it.ID,
				[]string{model.TaskStatusPending, model.TaskStatusRunning},
				to, map[string]any{"completed_at": now}); err != nil && !errors.Is(err, store.ErrConcurrentUpdate) {
				return nil, err
			}
		}
	}

	if job.TotalRecordsToProcess > 0 {
		deltas.RecordsProcessed = 1
	}
	if deltas != (store.JobCounterDeltas{}) {
		if err := a.store.Job().IncrementCounters(ctx, job.ID, deltas); err != nil {
			return nil, err
		}
	}

	job, err := a.store.Job().UpdateStatusIf(ctx, job.ID,
		[]string{model.JobStatusPending, model.JobStatusQueued, model.JobStatusRunning},
		model.JobStatusCompleted, map[string]any{"completed_at": now})
	if err != nil {
		return nil, err
	}

	logContext := map[string]any{}
	if len(report.Result) > 0 {
		logContext["result"] = report.Result
	}
	a.appendLog(ctx, job.ID, nil, "info", "job completed by device", logContext)
	return job, nil
}

// failOnDeviceVerdict fails the open tasks of the active scope and then lets
// the retry policy decide whether the job requeues or dies.
func (a *Aggregator) failOnDeviceVerdict(ctx context.Context, job *model.WorkflowJob, item *model.JobWorkflowItem, report api.CompletionRequest) (*model.WorkflowJob, string, error) {
	errorMessage := report.ErrorMessage
	if errorMessage == "" {
		errorMessage = "device reported failure"
	}

	var itemID *uuid.UUID
	if item != nil {
		itemID = &item.ID
	}
	closed, err := a.store.JobTask().CloseOpen(ctx, job.ID, itemID, model.TaskStatusFailed, errorMessage)
	if err != nil {
		return nil, "", err
	}
	if closed > 0 {
		deltas := store.JobCounterDeltas{FailedTasks: int(closed)}
		if item != nil {
			if err := a.store.JobItem().IncrementCounters(ctx, item.ID, deltas); err != nil {
				return nil, "", err
			}
		}
		if err := a.store.Job().IncrementCounters(ctx, job.ID, deltas); err != nil {
			return nil, "", err
		}
	}
	a.appendLog(ctx, job.ID, nil, "error", "device reported job failure", map[string]any{"error": errorMessage})

	failed := 0
	if item != nil {
		refreshed, err := a.store.JobItem().Get(ctx, item.ID)
		if err != nil {
			return nil, "", err
		}
		item = refreshed
		failed = item.FailedTasks
	} else {
		refreshed, err := a.store.Job().Get(ctx, job.ID)
		if err != nil {
			return nil, "", err
		}
		job = refreshed
		failed = job.FailedTasks
	}

	// a failure verdict with zero failed tasks still fails the job: the
	// device is authoritative about its own verdict
	if failed == 0 {
		job, err := a.failJob(ctx, job, item, errorMessage)
		return job, "failed by device", err
	}

	switch a.retry.Decide(job, failed) {
	case dispatch.DecisionRetry:
		job, err := a.retry.Requeue(ctx, job, item)
		if err != nil {
			return nil, "", err
		}
		a.appendLog(ctx, job.ID, nil, "warn",
			fmt.Sprintf("retrying %d failed task(s), attempt %d of %d", failed, job.RetryCount, job.MaxRetries), nil)
		return job, "retrying failed tasks", nil
	default:
		job, err := a.failJob(ctx, job, item, errorMessage)
		return job, "retries exhausted", err
	}
}

// ignore commits a log entry for a report that changes nothing. Terminal
// state never moves backwards, whatever arrives late.
func (a *Aggregator) ignore(ctx context.Context, job *model.WorkflowJob, taskID *uuid.UUID, message string) (*model.WorkflowJob, error) {
	a.appendLog(ctx, job.ID, taskID, "warn", message, nil)
	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	return job, nil
}

func (a *Aggregator) appendLog(ctx context.Context, jobID uuid.UUID, taskID *uuid.UUID, level, message string, logContext map[string]any) {
	entry := model.JobLog{
		JobID:   jobID,
		TaskID:  taskID,
		Level:   level,
		Message: message,
	}
	if len(logContext) > 0 {
		entry.Context = model.MakeJSONField(logContext)
	}
	if err := a.store.JobLog().Add(ctx, entry); err != nil {
		zap.S().Named("progress").Errorw("failed to append job log", "error", err, "job_id", jobID)
	}
}

func (a *Aggregator) scopeFailureMessage(ctx context.Context, job *model.WorkflowJob, item *model.JobWorkflowItem, failed int) string {
	var tasks model.JobTaskList
	var err error
	if item != nil {
		tasks, err = a.store.JobTask().ListByItem(ctx, item.ID)
	} else {
		tasks, err = a.store.JobTask().ListByJob(ctx, job.ID)
	}
	if err == nil {
		for i := len(tasks) - 1; i >= 0; i-- {
			if tasks[i].Status == model.TaskStatusFailed && tasks[i].ErrorMessage != "" {
				return tasks[i].ErrorMessage
			}
		}
	}
	return fmt.Sprintf("%d task(s) failed", failed)
}

func taskDeltas(status string) store.JobCounterDeltas {
	switch status {
	case model.TaskStatusCompleted:
		return store.JobCounterDeltas{CompletedTasks: 1}
	case model.TaskStatusFailed:
		return store.JobCounterDeltas{FailedTasks: 1}
	default:
		return store.JobCounterDeltas{SkippedTasks: 1}
	}
}

func normalizeTaskStatus(s string) (string, error) {
	switch s {
	case model.TaskStatusRunning, model.TaskStatusCompleted, model.TaskStatusFailed, model.TaskStatusSkipped:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskStatus, s)
	}
}
