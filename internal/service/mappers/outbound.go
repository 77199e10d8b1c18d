package mappers

import (
	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

func FlowToApi(f model.Flow) api.Flow {
	flow := api.Flow{
		ID:      f.ID.String(),
		Name:    f.Name,
		Version: f.Version,
	}
	if f.Graph != nil {
		flow.Graph = f.Graph.Data
	}
	return flow
}

func CampaignToApi(c model.Campaign) api.Campaign {
	return api.Campaign{
		ID:             c.ID.String(),
		Name:           c.Name,
		Status:         c.Status,
		ExecutionMode:  api.StringToExecutionMode(c.ExecutionMode),
		DeviceStrategy: api.StringToDeviceStrategy(c.DeviceStrategy),
		Priority:       c.Priority,
		ScheduledAt:    c.ScheduledAt,
		Workflows:      len(c.Workflows),
		Devices:        len(c.Devices),
		CreatedAt:      c.CreatedAt,
	}
}

func CampaignListToApi(campaigns model.CampaignList) []api.Campaign {
	result := make([]api.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		result = append(result, CampaignToApi(c))
	}
	return result
}

func JobToApi(j model.WorkflowJob) api.Job {
	job := api.Job{
		ID:               j.ID.String(),
		Name:             j.Name,
		DeviceID:         j.DeviceID.String(),
		Status:           j.Status,
		Priority:         j.Priority,
		ScheduledAt:      j.ScheduledAt,
		TotalTasks:       j.TotalTasks,
		CompletedTasks:   j.CompletedTasks,
		FailedTasks:      j.FailedTasks,
		SkippedTasks:     j.SkippedTasks,
		RecordsProcessed: j.RecordsProcessed,
		RecordsFailed:    j.RecordsFailed,
		TotalRecords:     j.TotalRecordsToProcess,
		RetryCount:       j.RetryCount,
		MaxRetries:       j.MaxRetries,
		CreatedAt:        j.CreatedAt,
	}
	if j.CampaignID != nil {
		job.CampaignID = j.CampaignID.String()
	}
	for _, item := range j.Items {
		job.Items = append(job.Items, ItemToApi(item))
	}
	// single-flow jobs carry their tasks at the top level
	for _, task := range j.Tasks {
		if task.ItemID == nil {
			job.Tasks = append(job.Tasks, TaskToApi(task))
		}
	}
	return job
}

func JobListToApi(jobs model.WorkflowJobList) []api.Job {
	result := make([]api.Job, 0, len(jobs))
	for _, j := range jobs {
		result = append(result, JobToApi(j))
	}
	return result
}

func ItemToApi(i model.JobWorkflowItem) api.JobItemView {
	return api.JobItemView{
		ID:             i.ID.String(),
		FlowID:         i.FlowID.String(),
		Sequence:       i.Sequence,
		Status:         i.Status,
		TotalTasks:     i.TotalTasks,
		CompletedTasks: i.CompletedTasks,
		FailedTasks:    i.FailedTasks,
		SkippedTasks:   i.SkippedTasks,
	}
}

func TaskToApi(t model.JobTask) api.JobTaskView {
	task := api.JobTaskView{
		ID:           t.ID.String(),
		NodeID:       t.NodeID,
		NodeType:     t.NodeType,
		Sequence:     t.Sequence,
		Status:       t.Status,
		ErrorMessage: t.ErrorMessage,
		DurationMs:   t.DurationMs,
	}
	if t.OutputData != nil {
		task.OutputData = t.OutputData.Data
	}
	return task
}

func PendingJobToApi(j model.WorkflowJob) api.PendingJob {
	return api.PendingJob{
		ID:          j.ID.String(),
		Name:        j.Name,
		Priority:    j.Priority,
		Status:      j.Status,
		ScheduledAt: j.ScheduledAt,
		CreatedAt:   j.CreatedAt,
	}
}

func PendingJobListToApi(jobs model.WorkflowJobList) []api.PendingJob {
	result := make([]api.PendingJob, 0, len(jobs))
	for _, j := range jobs {
		result = append(result, PendingJobToApi(j))
	}
	return result
}

func LogToApi(l model.JobLog) api.JobLogEntry {
	entry := api.JobLogEntry{
		ID:        l.ID,
		JobID:     l.JobID.String(),
		Level:     l.Level,
		Message:   l.Message,
		CreatedAt: l.CreatedAt,
	}
	if l.TaskID != nil {
		entry.TaskID = l.TaskID.String()
	}
	if l.Context != nil {
		entry.Context = l.Context.Data
	}
	return entry
}

func LogListToApi(logs model.JobLogList) []api.JobLogEntry {
	result := make([]api.JobLogEntry, 0, len(logs))
	for _, l := range logs {
		result = append(result, LogToApi(l))
	}
	return result
}

func DeviceToApi(d model.Device) api.Device {
	return api.Device{
		ID:         d.ID.String(),
		Name:       d.Name,
		Status:     d.Status,
		LastSeenAt: d.LastSeenAt,
		CreatedAt:  d.CreatedAt,
	}
}

func CollectionToApi(c model.DataCollection, recordCount int) api.Collection {
	return api.Collection{
		ID:          c.ID.String(),
		Name:        c.Name,
		RecordCount: recordCount,
		CreatedAt:   c.CreatedAt,
	}
}

func RecordToApi(r model.DataRecord) api.DataRecordView {
	record := api.DataRecordView{
		ID:       r.ID.String(),
		Position: r.Position,
		Used:     r.Used,
	}
	if r.Fields != nil {
		record.Fields = r.Fields.Data
	}
	return record
}
