package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type Flow interface {
	List(ctx context.Context, filter *FlowQueryFilter) (model.FlowList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Flow, error)
	Create(ctx context.Context, flow model.Flow) (*model.Flow, error)
	Update(ctx context.Context, flow model.Flow) (*model.Flow, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type FlowStore struct {
	db *gorm.DB
}

// Make sure we conform to Flow interface
var _ Flow = (*FlowStore)(nil)

func NewFlowStore(db *gorm.DB) Flow {
	return &FlowStore{db: db}
}

func (f *FlowStore) List(ctx context.Context, filter *FlowQueryFilter) (model.FlowList, error) {
	var flows model.FlowList
	tx := f.getDB(ctx).Model(&flows).Order("created_at DESC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&flows).Error; err != nil {
		return nil, err
	}
	return flows, nil
}

func (f *FlowStore) Get(ctx context.Context, id uuid.UUID) (*model.Flow, error) {
	var flow model.Flow
	if err := f.getDB(ctx).First(&flow, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &flow, nil
}

func (f *FlowStore) Create(ctx context.Context, flow model.Flow) (*model.Flow, error) {
	if err := f.getDB(ctx).Clauses(clause.Returning{}).Create(&flow).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &flow, nil
}

// Update bumps the stored graph and version. Jobs already dispatched keep the
// task snapshot they were created with.
func (f *FlowStore) Update(ctx context.Context, flow model.Flow) (*model.Flow, error) {
	if err := f.getDB(ctx).First(&model.Flow{}, "id = ?", flow.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := f.getDB(ctx).Model(&flow).Clauses(clause.Returning{}).Updates(&flow); tx.Error != nil {
		return nil, tx.Error
	}
	return &flow, nil
}

func (f *FlowStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := f.getDB(ctx).Delete(&model.Flow{ID: id})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (f *FlowStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return f.db
}
