package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
)

const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

type Campaign struct {
	ID                      uuid.UUID `gorm:"primaryKey"`
	Name                    string    `gorm:"not null"`
	OwnerID                 string    `gorm:"index:campaigns_owner_idx"`
	Status                  string    `gorm:"not null;default:draft"`
	ExecutionMode           string    `gorm:"not null;default:sequential"`
	RecordsPerBatch         int
	RepeatPerRecord         int
	DeviceStrategy          string                          `gorm:"not null;default:round_robin"`
	DataConfig              *JSONField[api.DataConfig]      `gorm:"type:jsonb"`
	RecordFilter            *JSONField[api.RecordFilter]    `gorm:"type:jsonb"`
	DeviceRecordAssignments *JSONField[map[string][]string] `gorm:"type:jsonb"`
	ScheduledAt             *time.Time
	Priority                int `gorm:"not null;default:5"`
	MaxRetries              int
	Workflows               []CampaignWorkflow `gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE;"`
	Devices                 []CampaignDevice   `gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE;"`
	CreatedAt               time.Time          `gorm:"not null;default:now()"`
	UpdatedAt               *time.Time
}

// CampaignWorkflow is one entry of a campaign's ordered flow chain.
type CampaignWorkflow struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"`
	CampaignID          uuid.UUID `gorm:"not null;index:campaign_workflows_campaign_idx"`
	FlowID              uuid.UUID `gorm:"not null"`
	Sequence            int       `gorm:"not null"`
	RepeatCount         int
	ExecutionMode       string `gorm:"not null;default:once"`
	DelayBetweenRepeats int
}

// CampaignDevice enrolls a device into a campaign. EnrolledAt orders devices
// for round-robin allocation ties.
type CampaignDevice struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	CampaignID uuid.UUID `gorm:"not null;uniqueIndex:campaign_devices_campaign_device"`
	DeviceID   uuid.UUID `gorm:"not null;uniqueIndex:campaign_devices_campaign_device"`
	EnrolledAt time.Time `gorm:"not null;default:now()"`
}

type CampaignList []Campaign

func (c Campaign) String() string {
	v, _ := json.Marshal(c)
	return string(v)
}

// IsChained reports whether the campaign runs more than one flow per record.
func (c Campaign) IsChained() bool {
	return len(c.Workflows) > 1
}
