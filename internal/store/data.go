package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type Data interface {
	CreateCollection(ctx context.Context, collection model.DataCollection) (*model.DataCollection, error)
	GetCollection(ctx context.Context, id uuid.UUID) (*model.DataCollection, error)
	CreateRecords(ctx context.Context, records []model.DataRecord) error
	ListRecords(ctx context.Context, filter *RecordQueryFilter) (model.DataRecordList, error)
	MarkRecordsUsed(ctx context.Context, ids []uuid.UUID) error
}

type DataSetStore struct {
	db *gorm.DB
}

// Make sure we conform to Data interface
var _ Data = (*DataSetStore)(nil)

func NewDataStore(db *gorm.DB) Data {
	return &DataSetStore{db: db}
}

func (d *DataSetStore) CreateCollection(ctx context.Context, collection model.DataCollection) (*model.DataCollection, error) {
	if err := d.getDB(ctx).Clauses(clause.Returning{}).Create(&collection).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &collection, nil
}

func (d *DataSetStore) GetCollection(ctx context.Context, id uuid.UUID) (*model.DataCollection, error) {
	var collection model.DataCollection
	if err := d.getDB(ctx).First(&collection, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &collection, nil
}

func (d *DataSetStore) CreateRecords(ctx context.Context, records []model.DataRecord) error {
	if len(records) == 0 {
		return nil
	}
	return d.getDB(ctx).Create(&records).Error
}

// ListRecords returns records in collection order.
func (d *DataSetStore) ListRecords(ctx context.Context, filter *RecordQueryFilter) (model.DataRecordList, error) {
	var records model.DataRecordList
	tx := d.getDB(ctx).Model(&records).Order("position ASC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// MarkRecordsUsed flags records handed to a dispatched job, so reruns with
// exclude_used skip them.
func (d *DataSetStore) MarkRecordsUsed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return d.getDB(ctx).Model(&model.DataRecord{}).
		Where("id IN ?", ids).
		Update("used", true).Error
}

func (d *DataSetStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return d.db
}
