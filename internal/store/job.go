package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

// JobCounterDeltas carries increments applied atomically to a job's rollup
// counters. Negative values decrement (retry rewinds failed counts).
type JobCounterDeltas struct {
	TotalTasks       int
	CompletedTasks   int
	FailedTasks      int
	SkippedTasks     int
	RecordsProcessed int
	RecordsFailed    int
}

type Job interface {
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.WorkflowJobList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.WorkflowJob, error)
	GetFull(ctx context.Context, id uuid.UUID) (*model.WorkflowJob, error)
	Create(ctx context.Context, job model.WorkflowJob) (*model.WorkflowJob, error)
	Update(ctx context.Context, job model.WorkflowJob) (*model.WorkflowJob, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from []string, to string, set map[string]any) (*model.WorkflowJob, error)
	IncrementCounters(ctx context.Context, id uuid.UUID, deltas JobCounterDeltas) error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.WorkflowJobList, error) {
	var jobs model.WorkflowJobList
	tx := j.getDB(ctx).Model(&jobs)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (j *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.WorkflowJob, error) {
	var job model.WorkflowJob
	if err := j.getDB(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetFull loads the job with its chain items and tasks in execution order.
func (j *JobStore) GetFull(ctx context.Context, id uuid.UUID) (*model.WorkflowJob, error) {
	var job model.WorkflowJob
	err := j.getDB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("job_workflow_items.sequence ASC")
		}).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("job_tasks.sequence ASC")
		}).
		First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Create persists the job together with any pre-built chain items and tasks
// in one insert.
func (j *JobStore) Create(ctx context.Context, job model.WorkflowJob) (*model.WorkflowJob, error) {
	if err := j.getDB(ctx).Clauses(clause.Returning{}).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &job, nil
}

func (j *JobStore) Update(ctx context.Context, job model.WorkflowJob) (*model.WorkflowJob, error) {
	if err := j.getDB(ctx).First(&model.WorkflowJob{}, "id = ?", job.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := j.getDB(ctx).Model(&job).Clauses(clause.Returning{}).Updates(&job); tx.Error != nil {
		return nil, tx.Error
	}
	return &job, nil
}

// UpdateStatusIf is the claim/transition primitive: a single conditional
// UPDATE guarded by the set of statuses the transition may start from.
// RowsAffected == 0 distinguishes a missing row (ErrRecordNotFound) from a
// row that moved on concurrently (ErrConcurrentUpdate).
func (j *JobStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []string, to string, set map[string]any) (*model.WorkflowJob, error) {
	updates := map[string]any{"status": to}
	for k, v := range set {
		updates[k] = v
	}

	result := j.getDB(ctx).Model(&model.WorkflowJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("updating job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := j.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConcurrentUpdate
	}

	return j.Get(ctx, id)
}

// IncrementCounters applies the deltas as column expressions so concurrent
// reports never lose updates.
func (j *JobStore) IncrementCounters(ctx context.Context, id uuid.UUID, deltas JobCounterDeltas) error {
	updates := map[string]any{}
	if deltas.TotalTasks != 0 {
		updates["total_tasks"] = gorm.Expr("total_tasks + ?", deltas.TotalTasks)
	}
	if deltas.CompletedTasks != 0 {
		updates["completed_tasks"] = gorm.Expr("completed_tasks + ?", deltas.CompletedTasks)
	}
	if deltas.FailedTasks != 0 {
		updates["failed_tasks"] = gorm.Expr("failed_tasks + ?", deltas.FailedTasks)
	}
	if deltas.SkippedTasks != 0 {
		updates["skipped_tasks"] = gorm.Expr("skipped_tasks + ?", deltas.SkippedTasks)
	}
	if deltas.RecordsProcessed != 0 {
		updates["records_processed"] = gorm.Expr("records_processed + ?", deltas.RecordsProcessed)
	}
	if deltas.RecordsFailed != 0 {
		updates["records_failed"] = gorm.Expr("records_failed + ?", deltas.RecordsFailed)
	}
	if len(updates) == 0 {
		return nil
	}

	result := j.getDB(ctx).Model(&model.WorkflowJob{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating job counters: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return j.db
}
