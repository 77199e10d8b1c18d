package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

// JobLog rows are append-only. There is deliberately no update or delete.
type JobLog interface {
	Add(ctx context.Context, entry model.JobLog) error
	List(ctx context.Context, jobID uuid.UUID, limit int) (model.JobLogList, error)
}

type JobLogStore struct {
	db *gorm.DB
}

// Make sure we conform to JobLog interface
var _ JobLog = (*JobLogStore)(nil)

func NewJobLogStore(db *gorm.DB) JobLog {
	return &JobLogStore{db: db}
}

func (l *JobLogStore) Add(ctx context.Context, entry model.JobLog) error {
	return l.getDB(ctx).Create(&entry).Error
}

func (l *JobLogStore) List(ctx context.Context, jobID uuid.UUID, limit int) (model.JobLogList, error) {
	var entries model.JobLogList
	tx := l.getDB(ctx).Model(&entries).
		Where("job_id = ?", jobID).
		Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	if err := tx.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *JobLogStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return l.db
}
