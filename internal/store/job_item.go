package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type JobItem interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) (model.JobWorkflowItemList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.JobWorkflowItem, error)
	GetBySequence(ctx context.Context, jobID uuid.UUID, sequence int) (*model.JobWorkflowItem, error)
	Update(ctx context.Context, item model.JobWorkflowItem) (*model.JobWorkflowItem, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from []string, to string, set map[string]any) (*model.JobWorkflowItem, error)
	IncrementCounters(ctx context.Context, id uuid.UUID, deltas JobCounterDeltas) error
	Rewind(ctx context.Context, id uuid.UUID) error
}

type JobItemStore struct {
	db *gorm.DB
}

// Make sure we conform to JobItem interface
var _ JobItem = (*JobItemStore)(nil)

func NewJobItemStore(db *gorm.DB) JobItem {
	return &JobItemStore{db: db}
}

func (i *JobItemStore) ListByJob(ctx context.Context, jobID uuid.UUID) (model.JobWorkflowItemList, error) {
	var items model.JobWorkflowItemList
	err := i.getDB(ctx).Model(&items).
		Where("job_id = ?", jobID).
		Order("sequence ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (i *JobItemStore) Get(ctx context.Context, id uuid.UUID) (*model.JobWorkflowItem, error) {
	var item model.JobWorkflowItem
	if err := i.getDB(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (i *JobItemStore) GetBySequence(ctx context.Context, jobID uuid.UUID, sequence int) (*model.JobWorkflowItem, error) {
	var item model.JobWorkflowItem
	err := i.getDB(ctx).
		Where("job_id = ? AND sequence = ?", jobID, sequence).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (i *JobItemStore) Update(ctx context.Context, item model.JobWorkflowItem) (*model.JobWorkflowItem, error) {
	if err := i.getDB(ctx).First(&model.JobWorkflowItem{}, "id = ?", item.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := i.getDB(ctx).Model(&item).Clauses(clause.Returning{}).Updates(&item); tx.Error != nil {
		return nil, tx.Error
	}
	return &item, nil
}

func (i *JobItemStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []string, to string, set map[string]any) (*model.JobWorkflowItem, error) {
	updates := map[string]any{"status": to}
	for k, v := range set {
		updates[k] = v
	}

	result := i.getDB(ctx).Model(&model.JobWorkflowItem{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := i.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConcurrentUpdate
	}

	return i.Get(ctx, id)
}

func (i *JobItemStore) IncrementCounters(ctx context.Context, id uuid.UUID, deltas JobCounterDeltas) error {
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
	if len(updates) == 0 {
		return nil
	}

	result := i.getDB(ctx).Model(&model.JobWorkflowItem{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Rewind puts the item back to pending with zeroed progress counters, for
// the next pass over a chained job's data records.
func (i *JobItemStore) Rewind(ctx context.Context, id uuid.UUID) error {
	result := i.getDB(ctx).Model(&model.JobWorkflowItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          model.TaskStatusPending,
			"completed_tasks": 0,
			"failed_tasks":    0,
			"skipped_tasks":   0,
			"started_at":      nil,
			"completed_at":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (i *JobItemStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return i.db
}
