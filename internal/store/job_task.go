package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type JobTask interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) (model.JobTaskList, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) (model.JobTaskList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.JobTask, error)
	GetByNode(ctx context.Context, jobID uuid.UUID, itemID *uuid.UUID, nodeID string) (*model.JobTask, error)
	CreateBatch(ctx context.Context, tasks []model.JobTask) error
	Update(ctx context.Context, task model.JobTask) (*model.JobTask, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from []string, to string, set map[string]any) (*model.JobTask, error)
	ResetToPending(ctx context.Context, ids []uuid.UUID) error
	CloseOpen(ctx context.Context, jobID uuid.UUID, itemID *uuid.UUID, status, errorMessage string) (int64, error)
}

type JobTaskStore struct {
	db *gorm.DB
}

// Make sure we conform to JobTask interface
var _ JobTask = (*JobTaskStore)(nil)

func NewJobTaskStore(db *gorm.DB) JobTask {
	return &JobTaskStore{db: db}
}

func (t *JobTaskStore) ListByJob(ctx context.Context, jobID uuid.UUID) (model.JobTaskList, error) {
	var tasks model.JobTaskList
	err := t.getDB(ctx).Model(&tasks).
		Where("job_id = ?", jobID).
		Order("sequence ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (t *JobTaskStore) ListByItem(ctx context.Context, itemID uuid.UUID) (model.JobTaskList, error) {
	var tasks model.JobTaskList
	err := t.getDB(ctx).Model(&tasks).
		Where("item_id = ?", itemID).
		Order("sequence ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (t *JobTaskStore) Get(ctx context.Context, id uuid.UUID) (*model.JobTask, error) {
	var task model.JobTask
	if err := t.getDB(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &task, nil
}

// GetByNode resolves a device report key. itemID narrows the lookup to the
// active chain item; nil matches single-flow task rows.
func (t *JobTaskStore) GetByNode(ctx context.Context, jobID uuid.UUID, itemID *uuid.UUID, nodeID string) (*model.JobTask, error) {
	var task model.JobTask
	tx := t.getDB(ctx).Where("job_id = ? AND node_id = ?", jobID, nodeID)
	if itemID != nil {
		tx = tx.Where("item_id = ?", *itemID)
	} else {
		tx = tx.Where("item_id IS NULL")
	}

	if err := tx.First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (t *JobTaskStore) CreateBatch(ctx context.Context, tasks []model.JobTask) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := t.getDB(ctx).Create(&tasks).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (t *JobTaskStore) Update(ctx context.Context, task model.JobTask) (*model.JobTask, error) {
	if err := t.getDB(ctx).First(&model.JobTask{}, "id = ?", task.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := t.getDB(ctx).Model(&task).Clauses(clause.Returning{}).Updates(&task); tx.Error != nil {
		return nil, tx.Error
	}
	return &task, nil
}

// UpdateStatusIf guards task transitions the same way the job store does.
// Duplicate terminal reports land here as ErrConcurrentUpdate and the caller
// downgrades them to no-ops.
func (t *JobTaskStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []string, to string, set map[string]any) (*model.JobTask, error) {
	updates := map[string]any{"status": to}
	for k, v := range set {
		updates[k] = v
	}

	result := t.getDB(ctx).Model(&model.JobTask{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := t.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConcurrentUpdate
	}

	return t.Get(ctx, id)
}

// ResetToPending rewinds the given tasks for another attempt, clearing any
// outcome of the previous run.
func (t *JobTaskStore) ResetToPending(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return t.getDB(ctx).Model(&model.JobTask{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":        model.TaskStatusPending,
			"output_data":   nil,
			"error_message": "",
			"duration_ms":   0,
			"started_at":    nil,
			"completed_at":  nil,
		}).Error
}

// CloseOpen force-finishes every non-terminal task in scope and returns how
// many rows moved. Used when a device's top-level completion report
// short-circuits per-task accounting.
func (t *JobTaskStore) CloseOpen(ctx context.Context, jobID uuid.UUID, itemID *uuid.UUID, status, errorMessage string) (int64, error) {
	tx := t.getDB(ctx).Model(&model.JobTask{}).
		Where("job_id = ?", jobID).
		Where("status IN ?", []string{model.TaskStatusPending, model.TaskStatusRunning})
	if itemID != nil {
		tx = tx.Where("item_id = ?", *itemID)
	}

	result := tx.Updates(map[string]any{
		"status":        status,
		"error_message": errorMessage,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (t *JobTaskStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return t.db
}
