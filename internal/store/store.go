package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Flow() Flow
	Campaign() Campaign
	Device() Device
	Data() Data
	Job() Job
	JobItem() JobItem
	JobTask() JobTask
	JobLog() JobLog
	InitialMigration(ctx context.Context) error
	Statistics(ctx context.Context) (model.FleetStats, error)
	Close() error
}

type DataStore struct {
	db       *gorm.DB
	flow     Flow
	campaign Campaign
	device   Device
	data     Data
	job      Job
	jobItem  JobItem
	jobTask  JobTask
	jobLog   JobLog
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		flow:     NewFlowStore(db),
		campaign: NewCampaignStore(db),
		device:   NewDeviceStore(db),
		data:     NewDataStore(db),
		job:      NewJobStore(db),
		jobItem:  NewJobItemStore(db),
		jobTask:  NewJobTaskStore(db),
		jobLog:   NewJobLogStore(db),
		db:       db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Flow() Flow {
	return s.flow
}

func (s *DataStore) Campaign() Campaign {
	return s.campaign
}

func (s *DataStore) Device() Device {
	return s.device
}

func (s *DataStore) Data() Data {
	return s.data
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) JobItem() JobItem {
	return s.jobItem
}

func (s *DataStore) JobTask() JobTask {
	return s.jobTask
}

func (s *DataStore) JobLog() JobLog {
	return s.jobLog
}

func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.Flow{},
		&model.Campaign{},
		&model.CampaignWorkflow{},
		&model.CampaignDevice{},
		&model.Device{},
		&model.DataCollection{},
		&model.DataRecord{},
		&model.WorkflowJob{},
		&model.JobWorkflowItem{},
		&model.JobTask{},
		&model.JobLog{},
	)
}

func (s *DataStore) Statistics(ctx context.Context) (model.FleetStats, error) {
	stats := model.NewFleetStats()

	rows := []struct {
		Status string
		Total  int
	}{}
	if err := s.db.WithContext(ctx).Model(&model.WorkflowJob{}).
		Select("status, count(*) as total").Group("status").Scan(&rows).Error; err != nil {
		return model.FleetStats{}, err
	}
	for _, r := range rows {
		stats.JobsByStatus[r.Status] = r.Total
		stats.TotalJobs += r.Total
	}

	rows = rows[:0]
	if err := s.db.WithContext(ctx).Model(&model.Device{}).
		Select("status, count(*) as total").Group("status").Scan(&rows).Error; err != nil {
		return model.FleetStats{}, err
	}
	for _, r := range rows {
		stats.DevicesByStatus[r.Status] = r.Total
		stats.TotalDevices += r.Total
	}

	var activeCampaigns int64
	if err := s.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("status = ?", model.CampaignStatusActive).Count(&activeCampaigns).Error; err != nil {
		return model.FleetStats{}, err
	}
	stats.ActiveCampaigns = int(activeCampaigns)

	return stats, nil
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
