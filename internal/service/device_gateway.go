package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/dispatch"
	"github.com/fleetdeck/fleetdeck/internal/progress"
	"github.com/fleetdeck/fleetdeck/internal/service/mappers"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
)

const DefaultPendingJobsLimit = 10

// DeviceGatewayService is everything a device talks to: the poll loop, the
// claim, config fetch and all progress reporting. Every operation checks
// that the job belongs to the calling device before touching it.
type DeviceGatewayService struct {
	store       store.Store
	aggregator  *progress.Aggregator
	chain       *dispatch.ChainExecutor
	pendingJobs int
}

type DeviceGatewayOption func(*DeviceGatewayService)

func WithPendingJobsLimit(n int) DeviceGatewayOption {
	return func(s *DeviceGatewayService) {
		s.pendingJobs = n
	}
}

func NewDeviceGatewayService(st store.Store, aggregator *progress.Aggregator, opts ...DeviceGatewayOption) *DeviceGatewayService {
	s := &DeviceGatewayService{
		store:       st,
		aggregator:  aggregator,
		chain:       dispatch.NewChainExecutor(st),
		pendingJobs: DefaultPendingJobsLimit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListPendingJobs returns the device's claimable work, highest priority
// first. Listing counts as device contact. Jobs of paused campaigns are
// hidden.
func (s *DeviceGatewayService) ListPendingJobs(ctx context.Context, deviceID uuid.UUID) ([]api.PendingJob, error) {
	if err := s.store.Device().Heartbeat(ctx, deviceID, model.DeviceStatusOnline, time.Now()); err != nil {
		zap.S().Named("device_gateway").Errorw("heartbeat on poll failed", "error", err, "device_id", deviceID)
	}
	metrics.ActiveDevicesPerWeek.Observe(deviceID.String())

	paused, err := s.pausedCampaignIDs(ctx)
	if err != nil {
		return nil, err
	}

	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().
			ByDeviceID(deviceID).
			ByStatus(model.JobStatusPending, model.JobStatusQueued).
			Due(time.Now()).
			ExcludeCampaigns(paused),
		store.NewJobQueryOptions().WithClaimOrder().WithLimit(s.pendingJobs))
	if err != nil {
		return nil, err
	}
	return mappers.PendingJobListToApi(jobs), nil
}

// Claim is the arbitration point: a conditional update that only wins when
// the job is still claimable. The loser gets the current status back and
// nothing else changes.
func (s *DeviceGatewayService) Claim(ctx context.Context, jobID, deviceID uuid.UUID) (*api.ClaimResponse, error) {
	job, err := s.ownedJob(ctx, jobID, deviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gateOnCampaign(ctx, job); err != nil {
		return nil, err
	}

	claimed, err := s.store.Job().UpdateStatusIf(ctx, jobID,
		[]string{model.JobStatusPending, model.JobStatusQueued},
		model.JobStatusQueued, map[string]any{"claimed_at": time.Now()})
	if err != nil {
		if errors.Is(err, store.ErrConcurrentUpdate) {
			metrics.IncreaseClaimConflictsMetric()
			current, gerr := s.store.Job().Get(ctx, jobID)
			if gerr != nil {
				return nil, gerr
			}
			return nil, NewErrJobStatusConflict(jobID, current.Status)
		}
		return nil, err
	}

	if err := s.store.JobLog().Add(ctx, model.JobLog{
		JobID:   jobID,
		Level:   "info",
		Message: "job claimed",
		Context: model.MakeJSONField(map[string]any{"device_id": deviceID.String()}),
	}); err != nil {
		zap.S().Named("device_gateway").Errorw("failed to append job log", "error", err, "job_id", jobID)
	}

	config, err := s.buildConfig(ctx, claimed)
	if err != nil {
		return nil, err
	}
	return &api.ClaimResponse{JobID: jobID.String(), Config: config}, nil
}

// GetConfig rebuilds the execution config for the job's current position.
// Devices call it again after every chain or record advance.
func (s *DeviceGatewayService) GetConfig(ctx context.Context, jobID, deviceID uuid.UUID) (*api.ExecutionConfig, error) {
	job, err := s.ownedJob(ctx, jobID, deviceID)
	if err != nil {
		return nil, err
	}
	if model.JobStatusTerminal(job.Status) {
		return nil, NewErrJobStatusConflict(jobID, job.Status)
	}
	return s.buildConfig(ctx, job)
}

func (s *DeviceGatewayService) Started(ctx context.Context, jobID, deviceID uuid.UUID) error {
	if _, err := s.ownedJob(ctx, jobID, deviceID); err != nil {
		return err
	}
	if _, err := s.aggregator.HandleStarted(ctx, jobID); err != nil {
		return s.mapReportError(ctx, jobID, err)
	}
	return nil
}

func (s *DeviceGatewayService) ReportTaskProgress(ctx context.Context, jobID, deviceID uuid.UUID, nodeID string, report api.TaskProgressRequest) error {
	if _, err := s.ownedJob(ctx, jobID, deviceID); err != nil {
		return err
	}
	if _, err := s.aggregator.HandleTaskReport(ctx, jobID, nodeID, report); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrTaskNotFound(jobID, nodeID)
		}
		if errors.Is(err, progress.ErrUnknownTaskStatus) {
			return NewErrValidation("%v", err)
		}
		return s.mapReportError(ctx, jobID, err)
	}
	return nil
}

func (s *DeviceGatewayService) ReportCompletion(ctx context.Context, jobID, deviceID uuid.UUID, report api.CompletionRequest) error {
	if _, err := s.ownedJob(ctx, jobID, deviceID); err != nil {
		return err
	}
	if _, err := s.aggregator.HandleCompletion(ctx, jobID, report); err != nil {
		return s.mapReportError(ctx, jobID, err)
	}
	return nil
}

func (s *DeviceGatewayService) AppendLog(ctx context.Context, jobID, deviceID uuid.UUID, request *api.LogRequest) error {
	if _, err := s.ownedJob(ctx, jobID, deviceID); err != nil {
		return err
	}
	if request.Message == "" {
		return NewErrValidation("log message is required")
	}
	entry, err := mappers.LogFromApi(jobID, request)
	if err != nil {
		return NewErrValidation("%v", err)
	}
	return s.store.JobLog().Add(ctx, entry)
}

func (s *DeviceGatewayService) Heartbeat(ctx context.Context, deviceID uuid.UUID, request *api.HeartbeatRequest) error {
	status := model.DeviceStatusOnline
	if request != nil && request.Status != "" {
		switch request.Status {
		case model.DeviceStatusOnline, model.DeviceStatusBusy:
			status = request.Status
		default:
			return NewErrValidation("unknown device status %q", request.Status)
		}
	}
	return s.store.Device().Heartbeat(ctx, deviceID, status, time.Now())
}

// buildConfig assembles the device's view of the active scope: the task
// rows (not the original flow, which may have changed since dispatch), the
// accumulated chain context, and the mapped fields of the current record.
func (s *DeviceGatewayService) buildConfig(ctx context.Context, job *model.WorkflowJob) (*api.ExecutionConfig, error) {
	config := &api.ExecutionConfig{
		JobID:         job.ID.String(),
		ExecutionMode: api.StringToExecutionMode(job.ExecutionMode),
		RecordIndex:   job.CurrentRecordIndex,
		TotalRecords:  job.TotalRecordsToProcess,
	}
	if job.ChainContext != nil && len(job.ChainContext.Data) > 0 {
		config.Context = job.ChainContext.Data
	}

	item, err := s.chain.ActiveItem(ctx, job)
	if err != nil {
		return nil, err
	}

	var tasks model.JobTaskList
	if item != nil {
		items, err := s.store.JobItem().ListByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		config.ItemID = item.ID.String()
		config.FlowID = item.FlowID.String()
		config.ChainIndex = item.Sequence
		config.ChainLength = len(items)

		tasks, err = s.store.JobTask().ListByItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
	} else {
		if job.FlowID != nil {
			config.FlowID = job.FlowID.String()
		}
		tasks, err = s.store.JobTask().ListByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
	}

	config.Tasks = make([]api.TaskTemplate, 0, len(tasks))
	for i := range tasks {
		task := &tasks[i]
		tpl := api.TaskTemplate{
			NodeID:   task.NodeID,
			NodeType: task.NodeType,
			Label:    task.Label,
			Sequence: task.Sequence,
		}
		if task.InputData != nil {
			tpl.Params = task.InputData.Data
		}
		config.Tasks = append(config.Tasks, tpl)
	}

	record, err := s.currentRecord(ctx, job)
	if err != nil {
		return nil, err
	}
	config.Record = record

	return config, nil
}

// currentRecord loads the record the job is positioned on and applies the
// campaign's field mapping. Jobs without data iterate nothing and return
// nil.
func (s *DeviceGatewayService) currentRecord(ctx context.Context, job *model.WorkflowJob) (map[string]any, error) {
	records := job.RecordIDs()
	if len(records) == 0 || job.CurrentRecordIndex >= len(records) {
		return nil, nil
	}

	rows, err := s.store.Data().ListRecords(ctx, store.NewRecordQueryFilter().ByIDs([]uuid.UUID{records[job.CurrentRecordIndex]}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	fields := map[string]any{}
	if rows[0].Fields != nil {
		fields = rows[0].Fields.Data
	}

	var mapping map[string]string
	if job.CampaignID != nil {
		campaign, err := s.store.Campaign().Get(ctx, *job.CampaignID)
		if err == nil && campaign.DataConfig != nil {
			mapping = campaign.DataConfig.Data.Primary.FieldMapping
		}
	}
	if len(mapping) == 0 {
		return fields, nil
	}

	mapped := make(map[string]any, len(mapping))
	for variable, field := range mapping {
		mapped[variable] = fields[field]
	}
	return mapped, nil
}

func (s *DeviceGatewayService) ownedJob(ctx context.Context, jobID, deviceID uuid.UUID) (*model.WorkflowJob, error) {
	job, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}
	if job.DeviceID != deviceID {
		return nil, NewErrJobOwnership(jobID, deviceID)
	}
	return job, nil
}

// gateOnCampaign blocks claims while the owning campaign is paused.
func (s *DeviceGatewayService) gateOnCampaign(ctx context.Context, job *model.WorkflowJob) error {
	if job.CampaignID == nil {
		return nil
	}
	campaign, err := s.store.Campaign().Get(ctx, *job.CampaignID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if campaign.Status == model.CampaignStatusPaused {
		return NewErrCampaignStatusConflict(campaign.ID, campaign.Status)
	}
	return nil
}

func (s *DeviceGatewayService) mapReportError(ctx context.Context, jobID uuid.UUID, err error) error {
	if errors.Is(err, store.ErrConcurrentUpdate) {
		current, gerr := s.store.Job().Get(ctx, jobID)
		if gerr != nil {
			return gerr
		}
		return NewErrJobStatusConflict(jobID, current.Status)
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		return NewErrJobNotFound(jobID)
	}
	return err
}

func (s *DeviceGatewayService) pausedCampaignIDs(ctx context.Context) ([]uuid.UUID, error) {
	paused, err := s.store.Campaign().List(ctx,
		store.NewCampaignQueryFilter().ByStatus(model.CampaignStatusPaused))
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(paused))
	for i := range paused {
		ids = append(ids, paused[i].ID)
	}
	return ids, nil
}
