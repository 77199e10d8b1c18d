package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/dispatch"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/service/mappers"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type CampaignService struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	notifier   events.Notifier
}

func NewCampaignService(store store.Store, dispatcher *dispatch.Dispatcher, notifier events.Notifier) *CampaignService {
	return &CampaignService{
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
}

func (s *CampaignService) CreateCampaign(ctx context.Context, request *api.CampaignCreateRequest) (*api.Campaign, error) {
	if request.Name == "" {
		return nil, NewErrValidation("campaign name is required")
	}
	if len(request.Workflows) == 0 {
		return nil, NewErrValidation("campaign needs at least one workflow")
	}
	if len(request.DeviceIDs) == 0 {
		return nil, NewErrValidation("campaign needs at least one enrolled device")
	}

	campaign, err := mappers.CampaignFromApi(uuid.New(), request)
	if err != nil {
		return nil, NewErrValidation("%v", err)
	}

	created, err := s.store.Campaign().Create(ctx, campaign)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, NewErrValidation("duplicate device enrollment")
		}
		return nil, err
	}

	result := mappers.CampaignToApi(*created)
	return &result, nil
}

func (s *CampaignService) ListCampaigns(ctx context.Context) ([]api.Campaign, error) {
	campaigns, err := s.store.Campaign().List(ctx, store.NewCampaignQueryFilter())
	if err != nil {
		return nil, err
	}
	return mappers.CampaignListToApi(campaigns), nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id uuid.UUID) (*api.Campaign, error) {
	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	result := mappers.CampaignToApi(*campaign)
	return &result, nil
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return err
	}
	switch campaign.Status {
	case model.CampaignStatusActive, model.CampaignStatusPaused:
		return NewErrCampaignStatusConflict(id, campaign.Status)
	}
	return s.store.Campaign().Delete(ctx, id)
}

// StartCampaign plans and dispatches. The campaign only turns active when at
// least one job was created; a plan that produces nothing leaves it in draft
// so the operator can fix the configuration and start again.
func (s *CampaignService) StartCampaign(ctx context.Context, id uuid.UUID) (*api.DispatchSummary, error) {
	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusDraft {
		return nil, NewErrCampaignStatusConflict(id, campaign.Status)
	}

	summary, err := s.dispatcher.DispatchCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, dispatch.ErrBadCampaignConfig) {
			return nil, NewErrValidation("%v", err)
		}
		return nil, err
	}

	if !summary.NothingToDispatch {
		if _, err := s.store.Campaign().UpdateStatus(ctx, id, model.CampaignStatusActive); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// PauseCampaign hides the campaign's jobs from devices; running work is not
// interrupted.
func (s *CampaignService) PauseCampaign(ctx context.Context, id uuid.UUID) (*api.Campaign, error) {
	return s.transition(ctx, id, model.CampaignStatusPaused, model.CampaignStatusActive)
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, id uuid.UUID) (*api.Campaign, error) {
	return s.transition(ctx, id, model.CampaignStatusActive, model.CampaignStatusPaused)
}

// CancelCampaign cancels undelivered jobs outright. Running jobs only get a
// stop request: the device owns them until it reports back.
func (s *CampaignService) CancelCampaign(ctx context.Context, id uuid.UUID) (*api.Campaign, error) {
	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case model.CampaignStatusCompleted, model.CampaignStatusCancelled:
		return nil, NewErrCampaignStatusConflict(id, campaign.Status)
	}

	ctx, err = s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	updated, err := s.store.Campaign().UpdateStatus(ctx, id, model.CampaignStatusCancelled)
	if err != nil {
		return nil, err
	}

	undelivered, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().ByCampaignID(id).ByStatus(model.JobStatusPending, model.JobStatusQueued),
		store.NewJobQueryOptions())
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range undelivered {
		job := &undelivered[i]
		if _, err := s.store.Job().UpdateStatusIf(ctx, job.ID,
			[]string{model.JobStatusPending, model.JobStatusQueued},
			model.JobStatusCancelled, map[string]any{"completed_at": now}); err != nil {
			if errors.Is(err, store.ErrConcurrentUpdate) {
				continue
			}
			return nil, err
		}
		if err := s.store.JobLog().Add(ctx, model.JobLog{
			JobID:   job.ID,
			Level:   "warn",
			Message: "job cancelled: campaign cancelled",
		}); err != nil {
			return nil, err
		}
	}

	running, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().ByCampaignID(id).ByStatus(model.JobStatusRunning),
		store.NewJobQueryOptions())
	if err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	for i := range running {
		s.notifier.StopRequested(ctx, &running[i])
	}
	zap.S().Named("campaign").Infow("campaign cancelled",
		"campaign_id", id, "jobs_cancelled", len(undelivered), "stop_requested", len(running))

	result := mappers.CampaignToApi(*updated)
	return &result, nil
}

func (s *CampaignService) ListCampaignJobs(ctx context.Context, id uuid.UUID) ([]api.Job, error) {
	if _, err := s.getCampaign(ctx, id); err != nil {
		return nil, err
	}
	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().ByCampaignID(id),
		store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		return nil, err
	}
	return mappers.JobListToApi(jobs), nil
}

func (s *CampaignService) transition(ctx context.Context, id uuid.UUID, to string, from ...string) (*api.Campaign, error) {
	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, status := range from {
		if campaign.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, NewErrCampaignStatusConflict(id, campaign.Status)
	}

	updated, err := s.store.Campaign().UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	result := mappers.CampaignToApi(*updated)
	return &result, nil
}

func (s *CampaignService) getCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	campaign, err := s.store.Campaign().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrCampaignNotFound(id)
		}
		return nil, err
	}
	return campaign, nil
}
