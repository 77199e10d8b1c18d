package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DataCollection struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	OwnerID   string    `gorm:"index:data_collections_owner_idx"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

// DataRecord is one row of a collection. Position fixes collection order for
// sequential iteration and pool draws.
type DataRecord struct {
	ID           uuid.UUID                  `gorm:"primaryKey"`
	CollectionID uuid.UUID                  `gorm:"not null;index:data_records_collection_idx"`
	Position     int                        `gorm:"not null"`
	Fields       *JSONField[map[string]any] `gorm:"type:jsonb"`
	Used         bool                       `gorm:"not null;default:false"`
	CreatedAt    time.Time                  `gorm:"not null;default:now()"`
}

type DataRecordList []DataRecord

func (r DataRecord) String() string {
	v, _ := json.Marshal(r)
	return string(v)
}

// Field returns a named field value, nil when absent.
func (r DataRecord) Field(name string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields.Data[name]
}
