package service_test

import (
	"context"
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/config"
	"github.com/fleetdeck/fleetdeck/internal/dispatch"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/planner"
	"github.com/fleetdeck/fleetdeck/internal/service"
	st "github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type stopRecorder struct {
	stops []string
	news  []string
}

func (n *stopRecorder) JobNew(_ context.Context, job *model.WorkflowJob) {
	n.news = append(n.news, job.ID.String())
}

func (n *stopRecorder) JobStatusChanged(context.Context, *model.WorkflowJob, string) {}

func (n *stopRecorder) StopRequested(_ context.Context, job *model.WorkflowJob) {
	n.stops = append(n.stops, job.ID.String())
}

var _ = events.Notifier(&stopRecorder{})

var _ = Describe("campaign lifecycle", Ordered, func() {
	var (
		s        st.Store
		gormdb   *gorm.DB
		notifier *stopRecorder
		svc      *service.CampaignService
	)

	seedFlow := func(name string) uuid.UUID {
		flowID := uuid.New()
		_, err := s.Flow().Create(context.TODO(), model.Flow{
			ID:   flowID,
			Name: name,
			Graph: model.MakeJSONField(api.FlowGraph{
				Nodes: []api.FlowNode{
					{ID: "open", Type: "action"},
					{ID: "submit", Type: "action"},
				},
				Edges: []api.FlowEdge{{From: "open", To: "submit"}},
			}),
		})
		Expect(err).To(BeNil())
		return flowID
	}

	seedCampaign := func(status string, mods ...func(*model.Campaign)) uuid.UUID {
		campaignID := uuid.New()
		campaign := model.Campaign{
			ID:             campaignID,
			Name:           "fleet warmup",
			Status:         status,
			ExecutionMode:  "sequential",
			DeviceStrategy: "round_robin",
		}
		for _, mod := range mods {
			mod(&campaign)
		}
		_, err := s.Campaign().Create(context.TODO(), campaign)
		Expect(err).To(BeNil())
		return campaignID
	}

	seedCampaignJob := func(campaignID uuid.UUID, status string) uuid.UUID {
		jobID := uuid.New()
		flowID := uuid.New()
		_, err := s.Job().Create(context.TODO(), model.WorkflowJob{
			ID:            jobID,
			Name:          "campaign job",
			FlowID:        &flowID,
			CampaignID:    &campaignID,
			DeviceID:      uuid.New(),
			Status:        status,
			Priority:      5,
			ExecutionMode: "sequential",
			MaxRetries:    3,
		})
		Expect(err).To(BeNil())
		return jobID
	}

	BeforeAll(func() {
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = st.NewStore(db)
		gormdb = db
		_ = s.InitialMigration(context.TODO())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		notifier = &stopRecorder{}
		dispatcher := dispatch.NewDispatcher(s, planner.New(planner.NewStorePoolSource(s)), notifier)
		svc = service.NewCampaignService(s, dispatcher, notifier)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from job_logs;")
		gormdb.Exec("DELETE from job_tasks;")
		gormdb.Exec("DELETE from job_workflow_items;")
		gormdb.Exec("DELETE from workflow_jobs;")
		gormdb.Exec("DELETE from campaign_devices;")
		gormdb.Exec("DELETE from campaign_workflows;")
		gormdb.Exec("DELETE from campaigns;")
		gormdb.Exec("DELETE from flows;")
	})

	Context("create", func() {
		It("persists a draft with its enrollment", func() {
			flowID := seedFlow("login")
			deviceID := uuid.New()

			created, err := svc.CreateCampaign(context.TODO(), &api.CampaignCreateRequest{
				Name:      "summer push",
				Workflows: []api.CampaignWorkflowSpec{{FlowID: flowID.String(), Sequence: 0}},
				DeviceIDs: []string{deviceID.String()},
			})
			Expect(err).To(BeNil())
			Expect(created.Status).To(Equal(model.CampaignStatusDraft))
			Expect(created.ExecutionMode).To(Equal(api.ExecutionModeSequential))
			Expect(created.Priority).To(Equal(5))
			Expect(created.Workflows).To(Equal(1))
			Expect(created.Devices).To(Equal(1))
		})

		It("rejects incomplete requests", func() {
			flowID := seedFlow("login")
			validation := &service.ErrValidation{}

			_, err := svc.CreateCampaign(context.TODO(), &api.CampaignCreateRequest{
				Workflows: []api.CampaignWorkflowSpec{{FlowID: flowID.String()}},
				DeviceIDs: []string{uuid.New().String()},
			})
			Expect(errors.As(err, &validation)).To(BeTrue())

			_, err = svc.CreateCampaign(context.TODO(), &api.CampaignCreateRequest{
				Name:      "no flows",
				DeviceIDs: []string{uuid.New().String()},
			})
			Expect(errors.As(err, &validation)).To(BeTrue())

			_, err = svc.CreateCampaign(context.TODO(), &api.CampaignCreateRequest{
				Name:      "no fleet",
				Workflows: []api.CampaignWorkflowSpec{{FlowID: flowID.String()}},
			})
			Expect(errors.As(err, &validation)).To(BeTrue())
		})

		It("rejects enrolling the same device twice", func() {
			flowID := seedFlow("login")
			deviceID := uuid.New()

			_, err := svc.CreateCampaign(context.TODO(), &api.CampaignCreateRequest{
				Name:      "double booked",
				Workflows: []api.CampaignWorkflowSpec{{FlowID: flowID.String()}},
				DeviceIDs: []string{deviceID.String(), deviceID.String()},
			})
			validation := &service.ErrValidation{}
			Expect(errors.As(err, &validation)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("duplicate device enrollment"))
		})
	})

	Context("start", func() {
		It("activates once jobs hit the queue", func() {
			flowID := seedFlow("login")
			campaignID := seedCampaign(model.CampaignStatusDraft, func(c *model.Campaign) {
				c.Workflows = []model.CampaignWorkflow{
					{CampaignID: c.ID, FlowID: flowID, Sequence: 0, ExecutionMode: "once"},
				}
				c.Devices = []model.CampaignDevice{
					{CampaignID: c.ID, DeviceID: uuid.New()},
				}
			})

			summary, err := svc.StartCampaign(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(summary.NothingToDispatch).To(BeFalse())
			Expect(summary.JobsCreated).To(Equal(1))
			Expect(notifier.news).To(HaveLen(1))

			campaign, err := s.Campaign().Get(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(campaign.Status).To(Equal(model.CampaignStatusActive))
		})

		It("stays in draft when the plan comes up empty", func() {
			flowID := seedFlow("login")
			campaignID := seedCampaign(model.CampaignStatusDraft, func(c *model.Campaign) {
				c.Workflows = []model.CampaignWorkflow{
					{CampaignID: c.ID, FlowID: flowID, Sequence: 0, ExecutionMode: "once"},
				}
			})

			summary, err := svc.StartCampaign(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(summary.NothingToDispatch).To(BeTrue())
			Expect(summary.Reason).To(Equal("no enrolled devices"))

			campaign, err := s.Campaign().Get(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(campaign.Status).To(Equal(model.CampaignStatusDraft))
		})

		It("only starts from draft", func() {
			campaignID := seedCampaign(model.CampaignStatusActive)

			_, err := svc.StartCampaign(context.TODO(), campaignID)
			conflict := &service.ErrStatusConflict{}
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.CurrentStatus).To(Equal(model.CampaignStatusActive))
		})

		It("turns config problems into validation errors", func() {
			campaignID := seedCampaign(model.CampaignStatusDraft, func(c *model.Campaign) {
				c.Workflows = []model.CampaignWorkflow{
					{CampaignID: c.ID, FlowID: uuid.New(), Sequence: 0, ExecutionMode: "once"},
				}
				c.Devices = []model.CampaignDevice{
					{CampaignID: c.ID, DeviceID: uuid.New()},
				}
			})

			_, err := svc.StartCampaign(context.TODO(), campaignID)
			validation := &service.ErrValidation{}
			Expect(errors.As(err, &validation)).To(BeTrue())

			campaign, err := s.Campaign().Get(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(campaign.Status).To(Equal(model.CampaignStatusDraft))
		})
	})

	Context("pause and resume", func() {
		It("pauses active work and resumes it", func() {
			campaignID := seedCampaign(model.CampaignStatusActive)

			paused, err := svc.PauseCampaign(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(paused.Status).To(Equal(model.CampaignStatusPaused))

			resumed, err := svc.ResumeCampaign(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(resumed.Status).To(Equal(model.CampaignStatusActive))
		})

		It("rejects transitions from the wrong state", func() {
			campaignID := seedCampaign(model.CampaignStatusDraft)
			conflict := &service.ErrStatusConflict{}

			_, err := svc.PauseCampaign(context.TODO(), campaignID)
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.CurrentStatus).To(Equal(model.CampaignStatusDraft))

			_, err = svc.ResumeCampaign(context.TODO(), campaignID)
			Expect(errors.As(err, &conflict)).To(BeTrue())
		})
	})

	Context("cancel", func() {
		It("cancels undelivered jobs and asks running devices to stop", func() {
			campaignID := seedCampaign(model.CampaignStatusActive)
			pendingID := seedCampaignJob(campaignID, model.JobStatusPending)
			queuedID := seedCampaignJob(campaignID, model.JobStatusQueued)
			runningID := seedCampaignJob(campaignID, model.JobStatusRunning)

			cancelled, err := svc.CancelCampaign(context.TODO(), campaignID)
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(model.CampaignStatusCancelled))

			for _, id := range []uuid.UUID{pendingID, queuedID} {
				job, err := s.Job().Get(context.TODO(), id)
				Expect(err).To(BeNil())
				Expect(job.Status).To(Equal(model.JobStatusCancelled))
				Expect(job.CompletedAt).ToNot(BeNil())

				logs, err := s.JobLog().List(context.TODO(), id, 0)
				Expect(err).To(BeNil())
				messages := make([]string, 0, len(logs))
				for _, entry := range logs {
					messages = append(messages, entry.Message)
				}
				Expect(messages).To(ContainElement("job cancelled: campaign cancelled"))
			}

			running, err := s.Job().Get(context.TODO(), runningID)
			Expect(err).To(BeNil())
			Expect(running.Status).To(Equal(model.JobStatusRunning))
			Expect(notifier.stops).To(Equal([]string{runningID.String()}))
		})

		It("will not cancel a finished campaign", func() {
			campaignID := seedCampaign(model.CampaignStatusCompleted)

			_, err := svc.CancelCampaign(context.TODO(), campaignID)
			conflict := &service.ErrStatusConflict{}
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.CurrentStatus).To(Equal(model.CampaignStatusCompleted))
		})
	})

	Context("delete", func() {
		It("blocks deletion while devices may still pick up work", func() {
			conflict := &service.ErrStatusConflict{}

			Expect(errors.As(svc.DeleteCampaign(context.TODO(), seedCampaign(model.CampaignStatusActive)), &conflict)).To(BeTrue())
			Expect(errors.As(svc.DeleteCampaign(context.TODO(), seedCampaign(model.CampaignStatusPaused)), &conflict)).To(BeTrue())
		})

		It("removes settled campaigns", func() {
			campaignID := seedCampaign(model.CampaignStatusCancelled)

			Expect(svc.DeleteCampaign(context.TODO(), campaignID)).To(BeNil())

			_, err := svc.GetCampaign(context.TODO(), campaignID)
			notFound := &service.ErrResourceNotFound{}
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})
})
