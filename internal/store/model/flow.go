package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
)

// Flow is a stored automation graph. Dispatch snapshots the compiled task
// templates into the job, so editing a flow never affects in-flight jobs.
type Flow struct {
	ID        uuid.UUID                 `gorm:"primaryKey"`
	Name      string                    `gorm:"not null"`
	OwnerID   string                    `gorm:"index:flows_owner_idx"`
	Version   int                       `gorm:"not null;default:1"`
	Graph     *JSONField[api.FlowGraph] `gorm:"type:jsonb"`
	CreatedAt time.Time                 `gorm:"not null;default:now()"`
	UpdatedAt *time.Time
}

type FlowList []Flow

func (f Flow) String() string {
	v, _ := json.Marshal(f)
	return string(v)
}
