package v1

import "time"

type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
	ExecutionModeParallel   ExecutionMode = "parallel"
)

type DeviceStrategy string

const (
	DeviceStrategyRoundRobin DeviceStrategy = "round_robin"
	DeviceStrategyRandom     DeviceStrategy = "random"
	DeviceStrategyManual     DeviceStrategy = "manual"
)

type PoolMode string

const (
	PoolModeRandom     PoolMode = "random"
	PoolModeSequential PoolMode = "sequential"
)

// WorkflowRunMode controls how one chained workflow executes per record.
// RunModeConditional is reserved; it currently behaves like RunModeOnce.
type WorkflowRunMode string

const (
	RunModeOnce        WorkflowRunMode = "once"
	RunModeRepeat      WorkflowRunMode = "repeat"
	RunModeConditional WorkflowRunMode = "conditional"
)

// DataConfig binds a campaign to its primary record collection and any named
// variable pools resolved at dispatch time.
type DataConfig struct {
	Primary PrimarySource `json:"primary"`
	Pools   []PoolConfig  `json:"pools,omitempty" validate:"omitempty,dive"`
}

type PrimarySource struct {
	CollectionID string `json:"collection_id" validate:"omitempty,uuid"`
	// FieldMapping renames record fields into task input variables,
	// variable name -> record field.
	FieldMapping map[string]string `json:"field_mapping,omitempty"`
}

type PoolConfig struct {
	Name         string   `json:"name" validate:"required,max=100"`
	CollectionID string   `json:"collection_id" validate:"required,uuid"`
	Field        string   `json:"field" validate:"required,max=100"`
	Count        int      `json:"count" validate:"gte=0"`
	Mode         PoolMode `json:"mode" validate:"omitempty,pool_mode"`
}

// RecordFilter narrows the primary collection before planning. A nil/empty
// filter selects every record.
type RecordFilter struct {
	// Field equality constraints, all of which must match.
	Equals map[string]string `json:"equals,omitempty"`
	// Limit caps the number of eligible records (0 = unlimited).
	Limit int `json:"limit,omitempty"`
	// ExcludeUsed skips records already consumed by an earlier run.
	ExcludeUsed bool `json:"exclude_used,omitempty"`
}

type CampaignWorkflowSpec struct {
	FlowID              string          `json:"flow_id" validate:"required,uuid"`
	Sequence            int             `json:"sequence" validate:"gte=0"`
	RepeatCount         int             `json:"repeat_count,omitempty" validate:"gte=0"`
	ExecutionMode       WorkflowRunMode `json:"execution_mode,omitempty" validate:"omitempty,run_mode"`
	DelayBetweenRepeats int             `json:"delay_between_repeats,omitempty" validate:"gte=0"`
}

type CampaignCreateRequest struct {
	Name                    string                 `json:"name" validate:"required,max=100,campaign_name"`
	ExecutionMode           ExecutionMode          `json:"execution_mode" validate:"omitempty,execution_mode"`
	RecordsPerBatch         int                    `json:"records_per_batch,omitempty" validate:"gte=0"`
	RepeatPerRecord         int                    `json:"repeat_per_record,omitempty" validate:"gte=0"`
	DeviceStrategy          DeviceStrategy         `json:"device_strategy" validate:"omitempty,device_strategy"`
	DataConfig              DataConfig             `json:"data_config"`
	RecordFilter            *RecordFilter          `json:"record_filter,omitempty"`
	DeviceRecordAssignments map[string][]string    `json:"device_record_assignments,omitempty"`
	Workflows               []CampaignWorkflowSpec `json:"workflows" validate:"required,min=1,dive"`
	DeviceIDs               []string               `json:"device_ids" validate:"required,min=1,dive,uuid"`
	ScheduledAt             *time.Time             `json:"scheduled_at,omitempty"`
	Priority                int                    `json:"priority,omitempty" validate:"gte=0"`
	MaxRetries              int                    `json:"max_retries,omitempty" validate:"gte=0"`
}

type Campaign struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Status         string         `json:"status"`
	ExecutionMode  ExecutionMode  `json:"execution_mode"`
	DeviceStrategy DeviceStrategy `json:"device_strategy"`
	Priority       int            `json:"priority,omitempty"`
	ScheduledAt    *time.Time     `json:"scheduled_at,omitempty"`
	Workflows      int            `json:"workflows"`
	Devices        int            `json:"devices"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DispatchSummary reports what a campaign start produced.
type DispatchSummary struct {
	CampaignID        string   `json:"campaign_id"`
	JobsCreated       int      `json:"jobs_created"`
	JobIDs            []string `json:"job_ids,omitempty"`
	NothingToDispatch bool     `json:"nothing_to_dispatch,omitempty"`
	Reason            string   `json:"reason,omitempty"`
}

func StringToExecutionMode(s string) ExecutionMode {
	if s == string(ExecutionModeParallel) {
		return ExecutionModeParallel
	}
	return ExecutionModeSequential
}

func StringToDeviceStrategy(s string) DeviceStrategy {
	switch s {
	case string(DeviceStrategyRandom):
		return DeviceStrategyRandom
	case string(DeviceStrategyManual):
		return DeviceStrategyManual
	default:
		return DeviceStrategyRoundRobin
	}
}

func StringToWorkflowRunMode(s string) WorkflowRunMode {
	switch s {
	case string(RunModeRepeat):
		return RunModeRepeat
	case string(RunModeConditional):
		return RunModeConditional
	default:
		return RunModeOnce
	}
}
