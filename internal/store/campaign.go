package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type Campaign interface {
	List(ctx context.Context, filter *CampaignQueryFilter) (model.CampaignList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	Create(ctx context.Context, campaign model.Campaign) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*model.Campaign, error)
	Delete(ctx context.Context, id uuid.UUID) error
	EnrollDevice(ctx context.Context, campaignID, deviceID uuid.UUID) error
}

type CampaignStore struct {
	db *gorm.DB
}

// Make sure we conform to Campaign interface
var _ Campaign = (*CampaignStore)(nil)

func NewCampaignStore(db *gorm.DB) Campaign {
	return &CampaignStore{db: db}
}

func (c *CampaignStore) List(ctx context.Context, filter *CampaignQueryFilter) (model.CampaignList, error) {
	var campaigns model.CampaignList
	tx := c.getDB(ctx).Model(&campaigns).Order("created_at DESC").
		Preload("Workflows", func(db *gorm.DB) *gorm.DB {
			return db.Order("campaign_workflows.sequence ASC")
		}).
		Preload("Devices", func(db *gorm.DB) *gorm.DB {
			return db.Order("campaign_devices.enrolled_at ASC")
		})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (c *CampaignStore) Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	var campaign model.Campaign
	err := c.getDB(ctx).
		Preload("Workflows", func(db *gorm.DB) *gorm.DB {
			return db.Order("campaign_workflows.sequence ASC")
		}).
		Preload("Devices", func(db *gorm.DB) *gorm.DB {
			return db.Order("campaign_devices.enrolled_at ASC")
		}).
		First(&campaign, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

// Create persists the campaign together with its workflow and device pivot
// rows in one insert.
func (c *CampaignStore) Create(ctx context.Context, campaign model.Campaign) (*model.Campaign, error) {
	if err := c.getDB(ctx).Clauses(clause.Returning{}).Create(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return c.Get(ctx, campaign.ID)
}

func (c *CampaignStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*model.Campaign, error) {
	result := c.getDB(ctx).Model(&model.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return c.Get(ctx, id)
}

func (c *CampaignStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := c.getDB(ctx).Delete(&model.Campaign{ID: id})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (c *CampaignStore) EnrollDevice(ctx context.Context, campaignID, deviceID uuid.UUID) error {
	enrollment := model.CampaignDevice{
		CampaignID: campaignID,
		DeviceID:   deviceID,
		EnrolledAt: time.Now(),
	}
	if err := c.getDB(ctx).Create(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (c *CampaignStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return c.db
}
