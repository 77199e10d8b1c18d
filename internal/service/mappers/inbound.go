package mappers

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

func FlowFromApi(id uuid.UUID, resource *api.FlowCreateRequest) model.Flow {
	return model.Flow{
		ID:      id,
		Name:    resource.Name,
		Version: 1,
		Graph:   model.MakeJSONField(resource.Graph),
	}
}

// CampaignFromApi builds the campaign row plus its workflow and device
// associations. Workflows keep their requested sequence order; devices
// enroll in list order.
func CampaignFromApi(id uuid.UUID, resource *api.CampaignCreateRequest) (model.Campaign, error) {
	campaign := model.Campaign{
		ID:              id,
		Name:            resource.Name,
		Status:          model.CampaignStatusDraft,
		ExecutionMode:   string(api.StringToExecutionMode(string(resource.ExecutionMode))),
		RecordsPerBatch: resource.RecordsPerBatch,
		RepeatPerRecord: resource.RepeatPerRecord,
		DeviceStrategy:  string(api.StringToDeviceStrategy(string(resource.DeviceStrategy))),
		ScheduledAt:     resource.ScheduledAt,
		Priority:        resource.Priority,
		MaxRetries:      resource.MaxRetries,
	}
	if campaign.Priority == 0 {
		campaign.Priority = 5
	}

	if resource.DataConfig.Primary.CollectionID != "" || len(resource.DataConfig.Pools) > 0 {
		campaign.DataConfig = model.MakeJSONField(resource.DataConfig)
	}
	if resource.RecordFilter != nil {
		campaign.RecordFilter = model.MakeJSONField(*resource.RecordFilter)
	}
	if len(resource.DeviceRecordAssignments) > 0 {
		campaign.DeviceRecordAssignments = model.MakeJSONField(resource.DeviceRecordAssignments)
	}

	workflows := make([]api.CampaignWorkflowSpec, len(resource.Workflows))
	copy(workflows, resource.Workflows)
	sort.SliceStable(workflows, func(i, j int) bool { return workflows[i].Sequence < workflows[j].Sequence })

	for seq, wf := range workflows {
		flowID, err := uuid.Parse(wf.FlowID)
		if err != nil {
			return model.Campaign{}, fmt.Errorf("workflow %d: invalid flow id %q", seq, wf.FlowID)
		}
		campaign.Workflows = append(campaign.Workflows, model.CampaignWorkflow{
			CampaignID:          id,
			FlowID:              flowID,
			Sequence:            seq,
			RepeatCount:         wf.RepeatCount,
			ExecutionMode:       string(api.StringToWorkflowRunMode(string(wf.ExecutionMode))),
			DelayBetweenRepeats: wf.DelayBetweenRepeats,
		})
	}

	for _, rawID := range resource.DeviceIDs {
		deviceID, err := uuid.Parse(rawID)
		if err != nil {
			return model.Campaign{}, fmt.Errorf("invalid device id %q", rawID)
		}
		campaign.Devices = append(campaign.Devices, model.CampaignDevice{
			CampaignID: id,
			DeviceID:   deviceID,
		})
	}

	return campaign, nil
}

func CollectionFromApi(id uuid.UUID, resource *api.CollectionCreateRequest) (model.DataCollection, []model.DataRecord) {
	collection := model.DataCollection{
		ID:   id,
		Name: resource.Name,
	}
	records := make([]model.DataRecord, 0, len(resource.Records))
	for position, fields := range resource.Records {
		record := model.DataRecord{
			ID:           uuid.New(),
			CollectionID: id,
			Position:     position,
		}
		if len(fields) > 0 {
			record.Fields = model.MakeJSONField(fields)
		}
		records = append(records, record)
	}
	return collection, records
}

func LogFromApi(jobID uuid.UUID, resource *api.LogRequest) (model.JobLog, error) {
	entry := model.JobLog{
		JobID:   jobID,
		Level:   resource.Level,
		Message: resource.Message,
	}
	if entry.Level == "" {
		entry.Level = "info"
	}
	if resource.TaskID != "" {
		taskID, err := uuid.Parse(resource.TaskID)
		if err != nil {
			return model.JobLog{}, fmt.Errorf("invalid task id %q", resource.TaskID)
		}
		entry.TaskID = &taskID
	}
	if len(resource.Context) > 0 {
		entry.Context = model.MakeJSONField(resource.Context)
	}
	return entry, nil
}
