package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
)

// Job status constants. pending → queued → running → terminal;
// pending|queued → cancelled is also a valid edge.
const (
	JobStatusPending   = "pending"
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Task (and chain item) status constants.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusSkipped   = "skipped"
)

// JobStatusTerminal reports whether a job status accepts no further
// transitions.
func JobStatusTerminal(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func TaskStatusTerminal(status string) bool {
	switch status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	}
	return false
}

// WorkflowJob is one dispatched, trackable unit of work assigned to exactly
// one device.
type WorkflowJob struct {
	ID         uuid.UUID  `gorm:"primaryKey"`
	Name       string     `gorm:"not null"`
	CampaignID *uuid.UUID `gorm:"index:workflow_jobs_campaign_idx"`
	FlowID     *uuid.UUID
	DeviceID   uuid.UUID `gorm:"not null;index:workflow_jobs_device_idx"`
	Status     string    `gorm:"not null;default:pending;index:workflow_jobs_status_idx"`
	Priority   int       `gorm:"not null;default:5"`

	ScheduledAt *time.Time
	ClaimedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	ExecutionMode string `gorm:"not null;default:sequential"`

	DataCollectionID *uuid.UUID
	DataRecordID     *uuid.UUID
	DataRecordIDs    *JSONField[[]uuid.UUID] `gorm:"type:jsonb"`

	CurrentRecordIndex    int
	TotalRecordsToProcess int
	RecordsProcessed      int
	RecordsFailed         int

	WorkflowChain     *JSONField[[]uuid.UUID]    `gorm:"type:jsonb"`
	ChainContext      *JSONField[map[string]any] `gorm:"type:jsonb"`
	CurrentChainIndex int

	RetryCount int
	MaxRetries int

	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	SkippedTasks   int

	ErrorMessage string

	Items []JobWorkflowItem `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE;"`
	Tasks []JobTask         `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt *time.Time
}

type WorkflowJobList []WorkflowJob

func (j WorkflowJob) String() string {
	v, _ := json.Marshal(j)
	return string(v)
}

// IsChained reports whether the job runs a workflow chain rather than a
// single flow.
func (j WorkflowJob) IsChained() bool {
	return j.WorkflowChain != nil && len(j.WorkflowChain.Data) > 1
}

// RecordIDs returns the job's record set: the batch list when present,
// otherwise the single record id.
func (j WorkflowJob) RecordIDs() []uuid.UUID {
	if j.DataRecordIDs != nil && len(j.DataRecordIDs.Data) > 0 {
		return j.DataRecordIDs.Data
	}
	if j.DataRecordID != nil {
		return []uuid.UUID{*j.DataRecordID}
	}
	return nil
}

// ItemConfig is the per-item execution snapshot: task templates compiled at
// dispatch time plus chain repeat bookkeeping. DelaySeconds postpones the
// item when the chain advances into it.
type ItemConfig struct {
	Templates    []api.TaskTemplate `json:"templates"`
	RepeatIndex  int                `json:"repeat_index,omitempty"`
	RepeatTotal  int                `json:"repeat_total,omitempty"`
	RunMode      string             `json:"run_mode,omitempty"`
	DelaySeconds int                `json:"delay_seconds,omitempty"`
}

// JobWorkflowItem is one flow execution within a chained job.
type JobWorkflowItem struct {
	ID       uuid.UUID `gorm:"primaryKey"`
	JobID    uuid.UUID `gorm:"not null;index:job_workflow_items_job_idx"`
	FlowID   uuid.UUID `gorm:"not null"`
	Sequence int       `gorm:"not null"`
	Status   string    `gorm:"not null;default:pending"`

	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	SkippedTasks   int

	Config *JSONField[ItemConfig] `gorm:"type:jsonb"`

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;default:now()"`
	UpdatedAt   *time.Time
}

type JobWorkflowItemList []JobWorkflowItem

func (i JobWorkflowItem) String() string {
	v, _ := json.Marshal(i)
	return string(v)
}

// JobTask is one node execution. Unique per (job, item, node): record
// iteration resets rows in place instead of inserting new ones, so the
// device report key (job_id, node_id) stays unambiguous.
type JobTask struct {
	ID       uuid.UUID  `gorm:"primaryKey"`
	JobID    uuid.UUID  `gorm:"not null;uniqueIndex:job_tasks_job_item_node"`
	ItemID   *uuid.UUID `gorm:"uniqueIndex:job_tasks_job_item_node"`
	NodeID   string     `gorm:"not null;uniqueIndex:job_tasks_job_item_node"`
	NodeType string     `gorm:"not null"`
	Label    string
	Sequence int    `gorm:"not null"`
	Status   string `gorm:"not null;default:pending"`

	InputData    *JSONField[map[string]any] `gorm:"type:jsonb"`
	OutputData   *JSONField[map[string]any] `gorm:"type:jsonb"`
	ErrorMessage string
	DurationMs   int64

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;default:now()"`
	UpdatedAt   *time.Time
}

type JobTaskList []JobTask

func (t JobTask) String() string {
	v, _ := json.Marshal(t)
	return string(v)
}

// JobLog is an append-only audit row. The store exposes create and list
// only; rows are never updated or deleted.
type JobLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	JobID     uuid.UUID `gorm:"not null;index:job_logs_job_idx"`
	TaskID    *uuid.UUID
	Level     string                     `gorm:"not null;default:info"`
	Message   string                     `gorm:"not null"`
	Context   *JSONField[map[string]any] `gorm:"type:jsonb"`
	CreatedAt time.Time                  `gorm:"not null;default:now()"`
}

type JobLogList []JobLog

func (l JobLog) String() string {
	v, _ := json.Marshal(l)
	return string(v)
}
