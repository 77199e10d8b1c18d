package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

// poolContextPrefix marks chain context keys seeded by the planner's data
// pools. Those survive record advances; everything else is per-record state.
const poolContextPrefix = "pools."

// ChainExecutor walks a job through its chain items and data records. All
// methods expect to run inside a transaction owned by the caller.
type ChainExecutor struct {
	store store.Store
}

func NewChainExecutor(s store.Store) *ChainExecutor {
	return &ChainExecutor{store: s}
}

// ActiveItem returns the chain item the job is currently executing, nil for
// single-flow jobs.
func (c *ChainExecutor) ActiveItem(ctx context.Context, job *model.WorkflowJob) (*model.JobWorkflowItem, error) {
	if job.FlowID != nil {
		return nil, nil
	}
	item, err := c.store.JobItem().GetBySequence(ctx, job.ID, job.CurrentChainIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving active chain item %d of job %s: %w", job.CurrentChainIndex, job.ID, err)
	}
	return item, nil
}

// Advance moves the job to the item following the one that just finished:
// outputs of the finished item fold into the chain context, the next item's
// tasks materialize (or rewind, on a later record pass), and the job drops
// back to queued so the device picks up the new config. Returns false when
// the finished item was the last.
func (c *ChainExecutor) Advance(ctx context.Context, job *model.WorkflowJob, finished *model.JobWorkflowItem) (*model.WorkflowJob, bool, error) {
	next, err := c.store.JobItem().GetBySequence(ctx, job.ID, finished.Sequence+1)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return job, false, nil
		}
		return nil, false, err
	}

	finishedTasks, err := c.store.JobTask().ListByItem(ctx, finished.ID)
	if err != nil {
		return nil, false, err
	}
	chainContext := mergeContext(contextOf(job), CaptureOutputs(finishedTasks))

	nextTasks, err := c.store.JobTask().ListByItem(ctx, next.ID)
	if err != nil {
		return nil, false, err
	}
	if len(nextTasks) == 0 {
		created := materializeTasks(job.ID, next)
		if err := c.store.JobTask().CreateBatch(ctx, created); err != nil {
			return nil, false, fmt.Errorf("materializing tasks for item %d: %w", next.Sequence, err)
		}
		if _, err := c.store.JobItem().Update(ctx, model.JobWorkflowItem{ID: next.ID, TotalTasks: len(created)}); err != nil {
			return nil, false, err
		}
		if err := c.store.Job().IncrementCounters(ctx, job.ID, store.JobCounterDeltas{TotalTasks: len(created)}); err != nil {
			return nil, false, err
		}
	} else {
		if err := c.store.JobTask().ResetToPending(ctx, taskIDs(nextTasks)); err != nil {
			return nil, false, err
		}
	}

	set := map[string]any{
		"current_chain_index": next.Sequence,
		"chain_context":       model.MakeJSONField(chainContext),
	}
	if delay := itemDelaySeconds(next); delay > 0 {
		set["scheduled_at"] = time.Now().Add(time.Duration(delay) * time.Second)
	}

	updated, err := c.store.Job().UpdateStatusIf(ctx, job.ID,
		[]string{model.JobStatusQueued, model.JobStatusRunning},
		model.JobStatusQueued, set)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// NextRecord rewinds the whole job for the following data record. Task rows
// are reused rather than duplicated so the (job, item, node) report key stays
// unambiguous; per-record history lives in the job log. The job stays
// running: the device keeps it and re-fetches its config.
func (c *ChainExecutor) NextRecord(ctx context.Context, job *model.WorkflowJob) (*model.WorkflowJob, error) {
	tasks, err := c.store.JobTask().ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if err := c.store.JobTask().ResetToPending(ctx, taskIDs(tasks)); err != nil {
		return nil, err
	}

	items, err := c.store.JobItem().ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if err := c.store.JobItem().Rewind(ctx, items[i].ID); err != nil {
			return nil, err
		}
	}

	updated, err := c.store.Job().UpdateStatusIf(ctx, job.ID,
		[]string{model.JobStatusRunning},
		model.JobStatusRunning, map[string]any{
			"current_record_index": job.CurrentRecordIndex + 1,
			"records_processed":    job.RecordsProcessed + 1,
			"current_chain_index":  0,
			"completed_tasks":      0,
			"failed_tasks":         0,
			"skipped_tasks":        0,
			"chain_context":        model.MakeJSONField(stripRecordContext(contextOf(job))),
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SkipRemaining marks every open chain item after the given sequence as
// skipped. Their tasks, if already materialized, close through the task
// store separately.
func (c *ChainExecutor) SkipRemaining(ctx context.Context, jobID uuid.UUID, afterSequence int) (int, error) {
	items, err := c.store.JobItem().ListByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	skipped := 0
	for i := range items {
		item := &items[i]
		if item.Sequence <= afterSequence || model.TaskStatusTerminal(item.Status) {
			continue
		}
		_, err := c.store.JobItem().UpdateStatusIf(ctx, item.ID,
			[]string{model.TaskStatusPending, model.TaskStatusRunning},
			model.TaskStatusSkipped, nil)
		if err != nil {
			if errors.Is(err, store.ErrConcurrentUpdate) {
				continue
			}
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

// CaptureOutputs collects the values each completed task published under the
// "outputs" key of its output data.
func CaptureOutputs(tasks model.JobTaskList) map[string]any {
	outputs := map[string]any{}
	for i := range tasks {
		task := &tasks[i]
		if task.Status != model.TaskStatusCompleted || task.OutputData == nil {
			continue
		}
		declared, ok := task.OutputData.Data["outputs"].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range declared {
			outputs[k] = v
		}
	}
	return outputs
}

func materializeTasks(jobID uuid.UUID, item *model.JobWorkflowItem) []model.JobTask {
	if item.Config == nil {
		return nil
	}
	return buildTasks(jobID, &item.ID, item.Config.Data.Templates)
}

func itemDelaySeconds(item *model.JobWorkflowItem) int {
	if item.Config == nil {
		return 0
	}
	return item.Config.Data.DelaySeconds
}

func contextOf(job *model.WorkflowJob) map[string]any {
	if job.ChainContext == nil {
		return map[string]any{}
	}
	return job.ChainContext.Data
}

func mergeContext(base, outputs map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(outputs))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range outputs {
		merged[k] = v
	}
	return merged
}

// stripRecordContext drops per-record chain state, keeping only the pool
// values the planner allotted for the whole job.
func stripRecordContext(chainContext map[string]any) map[string]any {
	kept := map[string]any{}
	for k, v := range chainContext {
		if strings.HasPrefix(k, poolContextPrefix) {
			kept[k] = v
		}
	}
	return kept
}

func taskIDs(tasks model.JobTaskList) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(tasks))
	for i := range tasks {
		ids = append(ids, tasks[i].ID)
	}
	return ids
}
