package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
	DeviceStatusBusy    = "busy"
)

type Device struct {
	ID         uuid.UUID `gorm:"primaryKey"`
	Name       string
	Status     string `gorm:"not null;default:offline"`
	LastSeenAt *time.Time
	CreatedAt  time.Time `gorm:"not null;default:now()"`
	UpdatedAt  *time.Time
}

type DeviceList []Device

func (d Device) String() string {
	v, _ := json.Marshal(d)
	return string(v)
}

func NewDeviceFromID(id uuid.UUID) *Device {
	return &Device{ID: id}
}
