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

type Device interface {
	List(ctx context.Context, filter *DeviceQueryFilter) (model.DeviceList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Device, error)
	Create(ctx context.Context, device model.Device) (*model.Device, error)
	Update(ctx context.Context, device model.Device) (*model.Device, error)
	Heartbeat(ctx context.Context, id uuid.UUID, status string, now time.Time) error
	MarkOffline(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeviceStore struct {
	db *gorm.DB
}

// Make sure we conform to Device interface
var _ Device = (*DeviceStore)(nil)

func NewDeviceStore(db *gorm.DB) Device {
	return &DeviceStore{db: db}
}

func (d *DeviceStore) List(ctx context.Context, filter *DeviceQueryFilter) (model.DeviceList, error) {
	var devices model.DeviceList
	tx := d.getDB(ctx).Model(&devices).Order("created_at ASC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (d *DeviceStore) Get(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	var device model.Device
	if err := d.getDB(ctx).First(&device, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (d *DeviceStore) Create(ctx context.Context, device model.Device) (*model.Device, error) {
	if err := d.getDB(ctx).Clauses(clause.Returning{}).Create(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &device, nil
}

func (d *DeviceStore) Update(ctx context.Context, device model.Device) (*model.Device, error) {
	if err := d.getDB(ctx).First(&model.Device{}, "id = ?", device.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := d.getDB(ctx).Model(&device).Clauses(clause.Returning{}).Updates(&device); tx.Error != nil {
		return nil, tx.Error
	}
	return &device, nil
}

// MarkOffline flips devices with no contact since the cutoff to offline.
// Returns the number of devices flipped.
func (d *DeviceStore) MarkOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	result := d.getDB(ctx).Model(&model.Device{}).
		Where("status IN ? AND last_seen_at < ?", []string{model.DeviceStatusOnline, model.DeviceStatusBusy}, cutoff).
		Update("status", model.DeviceStatusOffline)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Heartbeat upserts the device row and refreshes last_seen_at. Devices
// self-register on first contact.
func (d *DeviceStore) Heartbeat(ctx context.Context, id uuid.UUID, status string, now time.Time) error {
	device := model.Device{
		ID:         id,
		Status:     status,
		LastSeenAt: &now,
	}
	return d.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen_at"}),
	}).Create(&device).Error
}

func (d *DeviceStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return d.db
}
