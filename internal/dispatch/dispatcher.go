package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/flow"
	"github.com/fleetdeck/fleetdeck/internal/planner"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultPriority   = 5
)

// ErrBadCampaignConfig wraps dispatch failures caused by the campaign's own
// configuration rather than by infrastructure.
var ErrBadCampaignConfig = errors.New("campaign not dispatchable")

// Dispatcher turns campaign assignments into persisted, claimable jobs.
type Dispatcher struct {
	store             store.Store
	planner           *planner.Planner
	notifier          events.Notifier
	defaultMaxRetries int
}

type DispatcherOption func(*Dispatcher)

func WithDefaultMaxRetries(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultMaxRetries = n
	}
}

func NewDispatcher(s store.Store, p *planner.Planner, n events.Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:             s,
		planner:           p,
		notifier:          n,
		defaultMaxRetries: DefaultMaxRetries,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// DispatchCampaign plans the campaign and creates one job per assignment.
// Record allocation happens here, once; devices afterwards only contend for
// whole jobs.
func (d *Dispatcher) DispatchCampaign(ctx context.Context, campaignID uuid.UUID) (*api.DispatchSummary, error) {
	campaign, err := d.store.Campaign().Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(campaign.Workflows) == 0 {
		return nil, fmt.Errorf("%w: campaign %s has no workflows", ErrBadCampaignConfig, campaignID)
	}

	devices := make([]uuid.UUID, 0, len(campaign.Devices))
	for _, enrollment := range campaign.Devices {
		devices = append(devices, enrollment.DeviceID)
	}

	var records model.DataRecordList
	if campaign.DataConfig != nil && campaign.DataConfig.Data.Primary.CollectionID != "" {
		collectionID, err := uuid.Parse(campaign.DataConfig.Data.Primary.CollectionID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid primary collection id: %v", ErrBadCampaignConfig, err)
		}
		records, err = d.store.Data().ListRecords(ctx, store.NewRecordQueryFilter().ByCollectionID(collectionID))
		if err != nil {
			return nil, fmt.Errorf("loading records for campaign %s: %w", campaignID, err)
		}
	}

	plan, err := d.planner.Plan(ctx, planner.PlanInput{Campaign: campaign, Records: records, Devices: devices})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCampaignConfig, err)
	}

	summary := &api.DispatchSummary{CampaignID: campaignID.String()}
	if plan.NothingToDispatch {
		summary.NothingToDispatch = true
		summary.Reason = plan.Reason
		zap.S().Named("dispatcher").Infow("nothing to dispatch", "campaign_id", campaignID, "reason", plan.Reason)
		return summary, nil
	}

	templates, err := d.compileFlows(ctx, campaign)
	if err != nil {
		return nil, err
	}

	assigned := make(map[uuid.UUID]struct{})
	jobs := make([]*model.WorkflowJob, 0, len(plan.Assignments))
	for n, assignment := range plan.Assignments {
		job, err := d.dispatchOne(ctx, campaign, templates, assignment, n+1)
		if err != nil {
			return nil, fmt.Errorf("dispatching job %d of campaign %s: %w", n+1, campaignID, err)
		}
		jobs = append(jobs, job)
		for _, recordID := range assignment.RecordIDs {
			assigned[recordID] = struct{}{}
		}
	}

	if len(assigned) > 0 {
		ids := make([]uuid.UUID, 0, len(assigned))
		for id := range assigned {
			ids = append(ids, id)
		}
		if err := d.store.Data().MarkRecordsUsed(ctx, ids); err != nil {
			zap.S().Named("dispatcher").Errorw("failed to mark records used", "error", err, "campaign_id", campaignID)
		}
	}

	for _, job := range jobs {
		d.notifier.JobNew(ctx, job)
		summary.JobIDs = append(summary.JobIDs, job.ID.String())
	}
	summary.JobsCreated = len(jobs)

	zap.S().Named("dispatcher").Infow("campaign dispatched",
		"campaign_id", campaignID, "jobs_created", summary.JobsCreated)
	return summary, nil
}

// compileFlows compiles every flow the campaign references exactly once. The
// compiled templates get snapshotted into the job, so flow edits after
// dispatch never touch it.
func (d *Dispatcher) compileFlows(ctx context.Context, campaign *model.Campaign) (map[uuid.UUID][]api.TaskTemplate, error) {
	templates := make(map[uuid.UUID][]api.TaskTemplate, len(campaign.Workflows))
	for _, wf := range campaign.Workflows {
		if _, done := templates[wf.FlowID]; done {
			continue
		}
		flowRow, err := d.store.Flow().Get(ctx, wf.FlowID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: flow %s not found", ErrBadCampaignConfig, wf.FlowID)
			}
			return nil, fmt.Errorf("loading flow %s: %w", wf.FlowID, err)
		}
		if flowRow.Graph == nil {
			return nil, fmt.Errorf("%w: flow %s has no graph", ErrBadCampaignConfig, wf.FlowID)
		}
		compiled, err := flow.Compile(flowRow.Graph.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: compiling flow %s: %v", ErrBadCampaignConfig, wf.FlowID, err)
		}
		templates[wf.FlowID] = compiled
	}
	return templates, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, campaign *model.Campaign, templates map[uuid.UUID][]api.TaskTemplate, assignment planner.Assignment, ordinal int) (*model.WorkflowJob, error) {
	jobID := uuid.New()

	maxRetries := campaign.MaxRetries
	if maxRetries <= 0 {
		maxRetries = d.defaultMaxRetries
	}

	job := model.WorkflowJob{
		ID:            jobID,
		Name:          fmt.Sprintf("%s #%d", campaign.Name, ordinal),
		CampaignID:    &campaign.ID,
		DeviceID:      assignment.DeviceID,
		Status:        model.JobStatusPending,
		Priority:      normalizePriority(campaign.Priority),
		ScheduledAt:   campaign.ScheduledAt,
		ExecutionMode: campaign.ExecutionMode,
		MaxRetries:    maxRetries,
	}

	if len(assignment.RecordIDs) > 0 {
		collectionID, err := uuid.Parse(campaign.DataConfig.Data.Primary.CollectionID)
		if err != nil {
			return nil, fmt.Errorf("invalid primary collection id: %w", err)
		}
		job.DataCollectionID = &collectionID
		job.DataRecordIDs = model.MakeJSONField(assignment.RecordIDs)
		if len(assignment.RecordIDs) == 1 {
			recordID := assignment.RecordIDs[0]
			job.DataRecordID = &recordID
		}
		job.TotalRecordsToProcess = len(assignment.RecordIDs)
	}

	if len(assignment.Context) > 0 {
		job.ChainContext = model.MakeJSONField(assignment.Context)
	}

	sawConditional := false
	if isSingleFlow(campaign) {
		flowID := campaign.Workflows[0].FlowID
		job.FlowID = &flowID
		job.Tasks = buildTasks(jobID, nil, templates[flowID])
		job.TotalTasks = len(job.Tasks)
	} else {
		chain := make([]uuid.UUID, 0, len(campaign.Workflows))
		for _, wf := range campaign.Workflows {
			chain = append(chain, wf.FlowID)
		}
		job.WorkflowChain = model.MakeJSONField(chain)

		items, firstTasks, conditional := buildChainItems(jobID, campaign, templates)
		job.Items = items
		job.Tasks = firstTasks
		job.TotalTasks = len(firstTasks)
		sawConditional = conditional
	}

	ctx, err := d.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	created, err := d.store.Job().Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	logContext := map[string]any{
		"campaign_id": campaign.ID.String(),
		"device_id":   assignment.DeviceID.String(),
		"records":     len(assignment.RecordIDs),
	}
	if err := d.store.JobLog().Add(ctx, model.JobLog{
		JobID:   created.ID,
		Level:   "info",
		Message: "job dispatched",
		Context: model.MakeJSONField(logContext),
	}); err != nil {
		return nil, err
	}
	if sawConditional {
		if err := d.store.JobLog().Add(ctx, model.JobLog{
			JobID:   created.ID,
			Level:   "warn",
			Message: "unsupported execution mode conditional, running as once",
		}); err != nil {
			return nil, err
		}
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	kind := "single"
	if created.IsChained() {
		kind = "chained"
	}
	metrics.IncreaseJobsDispatchedMetric(kind)

	return created, nil
}

// isSingleFlow reports whether the campaign boils down to exactly one flow
// execution, which skips chain item rows entirely.
func isSingleFlow(campaign *model.Campaign) bool {
	if len(campaign.Workflows) != 1 {
		return false
	}
	wf := campaign.Workflows[0]
	if api.StringToWorkflowRunMode(wf.ExecutionMode) == api.RunModeRepeat && wf.RepeatCount > 1 {
		return false
	}
	return true
}

// buildChainItems pre-creates every chain item, repeat instances included.
// Only the first item's tasks materialize now; the chain executor expands
// the rest lazily as the chain advances.
func buildChainItems(jobID uuid.UUID, campaign *model.Campaign, templates map[uuid.UUID][]api.TaskTemplate) ([]model.JobWorkflowItem, []model.JobTask, bool) {
	sawConditional := false
	items := make([]model.JobWorkflowItem, 0, len(campaign.Workflows))

	seq := 0
	for _, wf := range campaign.Workflows {
		runMode := api.StringToWorkflowRunMode(wf.ExecutionMode)
		if runMode == api.RunModeConditional {
			sawConditional = true
		}

		repeats := 1
		if runMode == api.RunModeRepeat && wf.RepeatCount > 1 {
			repeats = wf.RepeatCount
		}

		for r := 0; r < repeats; r++ {
			cfg := model.ItemConfig{
				Templates: templates[wf.FlowID],
				RunMode:   string(runMode),
			}
			if repeats > 1 {
				cfg.RepeatIndex = r
				cfg.RepeatTotal = repeats
				if r > 0 {
					cfg.DelaySeconds = wf.DelayBetweenRepeats
				}
			}
			items = append(items, model.JobWorkflowItem{
				ID:       uuid.New(),
				JobID:    jobID,
				FlowID:   wf.FlowID,
				Sequence: seq,
				Status:   model.TaskStatusPending,
				Config:   model.MakeJSONField(cfg),
			})
			seq++
		}
	}

	first := &items[0]
	tasks := buildTasks(jobID, &first.ID, first.Config.Data.Templates)
	first.TotalTasks = len(tasks)

	return items, tasks, sawConditional
}

func buildTasks(jobID uuid.UUID, itemID *uuid.UUID, templates []api.TaskTemplate) []model.JobTask {
	tasks := make([]model.JobTask, 0, len(templates))
	for _, tpl := range templates {
		task := model.JobTask{
			ID:       uuid.New(),
			JobID:    jobID,
			ItemID:   itemID,
			NodeID:   tpl.NodeID,
			NodeType: tpl.NodeType,
			Label:    tpl.Label,
			Sequence: tpl.Sequence,
			Status:   model.TaskStatusPending,
		}
		if len(tpl.Params) > 0 {
			task.InputData = model.MakeJSONField(tpl.Params)
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func normalizePriority(p int) int {
	if p < 1 {
		return DefaultPriority
	}
	if p > 10 {
		return 10
	}
	return p
}
