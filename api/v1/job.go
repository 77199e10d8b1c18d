package v1

import "time"

// PendingJob is one entry of the device-facing pending list.
type PendingJob struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ClaimRequest struct {
	DeviceID string `json:"device_id" validate:"required,uuid"`
}

type ClaimResponse struct {
	JobID  string           `json:"job_id"`
	Config *ExecutionConfig `json:"config"`
}

// ClaimConflict is returned with a 409 when a claim loses the race or the
// job is no longer claimable.
type ClaimConflict struct {
	JobID         string `json:"job_id"`
	CurrentStatus string `json:"current_status"`
}

// ExecutionConfig is everything a device needs to execute the currently
// active step of a job.
type ExecutionConfig struct {
	JobID         string         `json:"job_id"`
	FlowID        string         `json:"flow_id,omitempty"`
	ItemID        string         `json:"item_id,omitempty"`
	ChainIndex    int            `json:"chain_index,omitempty"`
	ChainLength   int            `json:"chain_length,omitempty"`
	ExecutionMode ExecutionMode  `json:"execution_mode"`
	Tasks         []TaskTemplate `json:"tasks"`
	Context       map[string]any `json:"context,omitempty"`
	Record        map[string]any `json:"record,omitempty"`
	RecordIndex   int            `json:"record_index"`
	TotalRecords  int            `json:"total_records"`
}

type TaskProgressRequest struct {
	Status       string         `json:"status" validate:"required,task_status"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty" validate:"omitempty,max=4096"`
	Reason       string         `json:"reason,omitempty" validate:"omitempty,max=200"`
	DurationMs   int64          `json:"duration_ms,omitempty" validate:"gte=0"`
}

type CompletionRequest struct {
	Success      bool           `json:"success"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

type LogRequest struct {
	Level   string         `json:"level" validate:"omitempty,log_level"`
	Message string         `json:"message" validate:"required,max=4096"`
	TaskID  string         `json:"task_id,omitempty" validate:"omitempty,uuid"`
	Context map[string]any `json:"context,omitempty"`
}

type JobTaskView struct {
	ID           string         `json:"id"`
	NodeID       string         `json:"node_id"`
	NodeType     string         `json:"node_type"`
	Sequence     int            `json:"sequence"`
	Status       string         `json:"status"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
}

type JobItemView struct {
	ID             string        `json:"id"`
	FlowID         string        `json:"flow_id"`
	Sequence       int           `json:"sequence"`
	Status         string        `json:"status"`
	TotalTasks     int           `json:"total_tasks"`
	CompletedTasks int           `json:"completed_tasks"`
	FailedTasks    int           `json:"failed_tasks"`
	SkippedTasks   int           `json:"skipped_tasks"`
	Tasks          []JobTaskView `json:"tasks,omitempty"`
}

type Job struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	CampaignID       string        `json:"campaign_id,omitempty"`
	DeviceID         string        `json:"device_id"`
	Status           string        `json:"status"`
	Priority         int           `json:"priority"`
	ScheduledAt      *time.Time    `json:"scheduled_at,omitempty"`
	TotalTasks       int           `json:"total_tasks"`
	CompletedTasks   int           `json:"completed_tasks"`
	FailedTasks      int           `json:"failed_tasks"`
	SkippedTasks     int           `json:"skipped_tasks"`
	RecordsProcessed int           `json:"records_processed"`
	RecordsFailed    int           `json:"records_failed"`
	TotalRecords     int           `json:"total_records"`
	RetryCount       int           `json:"retry_count"`
	MaxRetries       int           `json:"max_retries"`
	CreatedAt        time.Time     `json:"created_at"`
	Items            []JobItemView `json:"items,omitempty"`
	Tasks            []JobTaskView `json:"tasks,omitempty"`
}

type JobLogEntry struct {
	ID        int64          `json:"id"`
	JobID     string         `json:"job_id"`
	TaskID    string         `json:"task_id,omitempty"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Error struct {
	Message       string `json:"message"`
	RequestID     string `json:"request_id,omitempty"`
	CurrentStatus string `json:"current_status,omitempty"`
}
