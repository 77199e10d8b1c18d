package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByID
	SortByUpdatedTime
	SortByCreatedTime
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type FlowQueryFilter BaseQuerier

func NewFlowQueryFilter() *FlowQueryFilter {
	return &FlowQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *FlowQueryFilter) ByOwnerID(ownerID string) *FlowQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("owner_id = ?", ownerID)
	})
	return qf
}

func (qf *FlowQueryFilter) ByName(name string) *FlowQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("name = ?", name)
	})
	return qf
}

type CampaignQueryFilter BaseQuerier

func NewCampaignQueryFilter() *CampaignQueryFilter {
	return &CampaignQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *CampaignQueryFilter) ByOwnerID(ownerID string) *CampaignQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("owner_id = ?", ownerID)
	})
	return qf
}

func (qf *CampaignQueryFilter) ByStatus(status string) *CampaignQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

type DeviceQueryFilter BaseQuerier

func NewDeviceQueryFilter() *DeviceQueryFilter {
	return &DeviceQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *DeviceQueryFilter) ByStatus(status string) *DeviceQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

func (qf *DeviceQueryFilter) ByIDs(ids []uuid.UUID) *DeviceQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return qf
}

func (qf *DeviceQueryFilter) LastSeenBefore(t time.Time) *DeviceQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("last_seen_at < ?", t)
	})
	return qf
}

type RecordQueryFilter BaseQuerier

func NewRecordQueryFilter() *RecordQueryFilter {
	return &RecordQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *RecordQueryFilter) ByCollectionID(collectionID uuid.UUID) *RecordQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("collection_id = ?", collectionID)
	})
	return qf
}

func (qf *RecordQueryFilter) ByUsed(used bool) *RecordQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		if used {
			return tx.Where("used IS TRUE")
		}
		return tx.Where("used IS NOT TRUE")
	})
	return qf
}

func (qf *RecordQueryFilter) ByIDs(ids []uuid.UUID) *RecordQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return qf
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByDeviceID(deviceID uuid.UUID) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("device_id = ?", deviceID)
	})
	return qf
}

func (qf *JobQueryFilter) ByCampaignID(campaignID uuid.UUID) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("campaign_id = ?", campaignID)
	})
	return qf
}

func (qf *JobQueryFilter) ByStatus(statuses ...string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return qf
}

// Due keeps jobs whose schedule came due: no scheduled_at, or scheduled_at in
// the past.
func (qf *JobQueryFilter) Due(now time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("scheduled_at IS NULL OR scheduled_at <= ?", now)
	})
	return qf
}

// Scheduled keeps jobs still waiting on a future scheduled_at.
func (qf *JobQueryFilter) Scheduled(now time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("scheduled_at IS NOT NULL AND scheduled_at > ?", now)
	})
	return qf
}

// ScheduledDue keeps jobs that were parked on a scheduled_at which has now
// arrived. Unlike Due it excludes jobs that never had a schedule.
func (qf *JobQueryFilter) ScheduledDue(now time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now)
	})
	return qf
}

// StalledSince keeps jobs with no write activity since the cutoff.
func (qf *JobQueryFilter) StalledSince(cutoff time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("updated_at IS NOT NULL AND updated_at < ?", cutoff)
	})
	return qf
}

// ExcludeCampaigns drops jobs belonging to the given campaigns. Used to hide
// paused campaigns' work from devices.
func (qf *JobQueryFilter) ExcludeCampaigns(ids []uuid.UUID) *JobQueryFilter {
	if len(ids) == 0 {
		return qf
	}
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("campaign_id IS NULL OR campaign_id NOT IN ?", ids)
	})
	return qf
}

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

// WithClaimOrder orders the way devices pick work: highest priority first,
// oldest first within a priority.
func (o *JobQueryOptions) WithClaimOrder() *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Order("priority DESC").Order("created_at ASC")
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByID:
			return tx.Order("id")
		case SortByUpdatedTime:
			return tx.Order("updated_at")
		case SortByCreatedTime:
			return tx.Order("created_at")
		default:
			return tx
		}
	})
	return o
}
