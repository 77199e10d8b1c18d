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
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/progress"
	"github.com/fleetdeck/fleetdeck/internal/service"
	st "github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type silentNotifier struct{}

func (silentNotifier) JobNew(context.Context, *model.WorkflowJob) {}

func (silentNotifier) JobStatusChanged(context.Context, *model.WorkflowJob, string) {}

func (silentNotifier) StopRequested(context.Context, *model.WorkflowJob) {}

var _ = events.Notifier(silentNotifier{})

var _ = Describe("device gateway", Ordered, func() {
	var (
		s       st.Store
		gormdb  *gorm.DB
		gateway *service.DeviceGatewayService
	)

	seedJob := func(deviceID uuid.UUID, mods ...func(*model.WorkflowJob)) uuid.UUID {
		jobID := uuid.New()
		flowID := uuid.New()
		job := model.WorkflowJob{
			ID:            jobID,
			Name:          "gateway job",
			FlowID:        &flowID,
			DeviceID:      deviceID,
			Status:        model.JobStatusPending,
			Priority:      5,
			ExecutionMode: "sequential",
			MaxRetries:    3,
			TotalTasks:    2,
			Tasks: []model.JobTask{
				{ID: uuid.New(), JobID: jobID, NodeID: "login", NodeType: "action", Sequence: 0, Status: model.TaskStatusPending,
					InputData: model.MakeJSONField(map[string]any{"retries": float64(2)})},
				{ID: uuid.New(), JobID: jobID, NodeID: "post", NodeType: "action", Sequence: 1, Status: model.TaskStatusPending},
			},
		}
		for _, mod := range mods {
			mod(&job)
		}
		_, err := s.Job().Create(context.TODO(), job)
		Expect(err).To(BeNil())
		return jobID
	}

	seedCampaign := func(status string) uuid.UUID {
		campaignID := uuid.New()
		_, err := s.Campaign().Create(context.TODO(), model.Campaign{
			ID:             campaignID,
			Name:           "gateway campaign",
			Status:         status,
			ExecutionMode:  "sequential",
			DeviceStrategy: "round_robin",
		})
		Expect(err).To(BeNil())
		return campaignID
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
		gateway = service.NewDeviceGatewayService(s, progress.NewAggregator(s, silentNotifier{}))
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from job_logs;")
		gormdb.Exec("DELETE from job_tasks;")
		gormdb.Exec("DELETE from job_workflow_items;")
		gormdb.Exec("DELETE from workflow_jobs;")
		gormdb.Exec("DELETE from campaign_devices;")
		gormdb.Exec("DELETE from campaign_workflows;")
		gormdb.Exec("DELETE from campaigns;")
		gormdb.Exec("DELETE from data_records;")
		gormdb.Exec("DELETE from data_collections;")
		gormdb.Exec("DELETE from devices;")
	})

	Context("pending jobs", func() {
		It("lists only claimable work and registers the contact", func() {
			deviceID := uuid.New()
			claimable := seedJob(deviceID)
			seedJob(deviceID, func(job *model.WorkflowJob) {
				job.Status = model.JobStatusRunning
			})
			seedJob(uuid.New()) // someone else's

			pausedID := seedCampaign(model.CampaignStatusPaused)
			seedJob(deviceID, func(job *model.WorkflowJob) {
				job.CampaignID = &pausedID
			})

			pending, err := gateway.ListPendingJobs(context.TODO(), deviceID)
			Expect(err).To(BeNil())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].ID).To(Equal(claimable.String()))

			// polling counts as a heartbeat
			device, err := s.Device().Get(context.TODO(), deviceID)
			Expect(err).To(BeNil())
			Expect(device.Status).To(Equal(model.DeviceStatusOnline))
		})

		It("orders the list the way devices should claim", func() {
			deviceID := uuid.New()
			seedJob(deviceID, func(job *model.WorkflowJob) { job.Name = "low"; job.Priority = 1 })
			seedJob(deviceID, func(job *model.WorkflowJob) { job.Name = "high"; job.Priority = 9 })

			pending, err := gateway.ListPendingJobs(context.TODO(), deviceID)
			Expect(err).To(BeNil())
			Expect(pending).To(HaveLen(2))
			Expect(pending[0].Name).To(Equal("high"))
		})
	})

	Context("claim", func() {
		It("hands the winner the execution config", func() {
			deviceID := uuid.New()
			jobID := seedJob(deviceID)

			resp, err := gateway.Claim(context.TODO(), jobID, deviceID)
			Expect(err).To(BeNil())
			Expect(resp.JobID).To(Equal(jobID.String()))
			Expect(resp.Config.Tasks).To(HaveLen(2))
			Expect(resp.Config.Tasks[0].NodeID).To(Equal("login"))
			Expect(resp.Config.Tasks[0].Params).To(HaveKey("retries"))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.ClaimedAt).ToNot(BeNil())
		})

		It("lets the assigned device re-claim after a restart", func() {
			deviceID := uuid.New()
			jobID := seedJob(deviceID)

			_, err := gateway.Claim(context.TODO(), jobID, deviceID)
			Expect(err).To(BeNil())
			resp, err := gateway.Claim(context.TODO(), jobID, deviceID)
			Expect(err).To(BeNil())
			Expect(resp.Config).ToNot(BeNil())
		})

		It("tells the loser what state the job is in", func() {
			deviceID := uuid.New()
			jobID := seedJob(deviceID, func(job *model.WorkflowJob) {
				job.Status = model.JobStatusRunning
			})

			_, err := gateway.Claim(context.TODO(), jobID, deviceID)
			conflict := &service.ErrStatusConflict{}
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.CurrentStatus).To(Equal(model.JobStatusRunning))
		})

		It("rejects a device the job was not assigned to", func() {
			jobID := seedJob(uuid.New())

			_, err := gateway.Claim(context.TODO(), jobID, uuid.New())
			ownership := &service.ErrJobOwnership{}
			Expect(errors.As(err, &ownership)).To(BeTrue())
		})

		It("blocks claims while the campaign is paused", func() {
			deviceID := uuid.New()
			pausedID := seedCampaign(model.CampaignStatusPaused)
			jobID := seedJob(deviceID, func(job *model.WorkflowJob) {
				job.CampaignID = &pausedID
			})

			_, err := gateway.Claim(context.TODO(), jobID, deviceID)
			conflict := &service.ErrStatusConflict{}
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.CurrentStatus).To(Equal(model.CampaignStatusPaused))
		})
	})

	Context("execution config", func() {
		It("maps record fields through the campaign's field mapping", func() {
			deviceID := uuid.New()
			collectionID := uuid.New()
			_, err := s.Data().CreateCollection(context.TODO(), model.DataCollection{ID: collectionID, Name: "accounts"})
			Expect(err).To(BeNil())

			recordID := uuid.New()
			Expect(s.Data().CreateRecords(context.TODO(), []model.DataRecord{{
				ID:           recordID,
				CollectionID: collectionID,
				Position:     0,
				Fields:       model.MakeJSONField(map[string]any{"user_col": "alice", "pass_col": "hunter2"}),
			}})).To(BeNil())

			campaignID := uuid.New()
			_, err = s.Campaign().Create(context.TODO(), model.Campaign{
				ID:             campaignID,
				Name:           "mapped",
				Status:         model.CampaignStatusActive,
				ExecutionMode:  "sequential",
				DeviceStrategy: "round_robin",
				DataConfig: model.MakeJSONField(api.DataConfig{
					Primary: api.PrimarySource{
						CollectionID: collectionID.String(),
						FieldMapping: map[string]string{"username": "user_col"},
					},
				}),
			})
			Expect(err).To(BeNil())

			jobID := seedJob(deviceID, func(job *model.WorkflowJob) {
				job.CampaignID = &campaignID
				job.DataCollectionID = &collectionID
				job.DataRecordIDs = model.MakeJSONField([]uuid.UUID{recordID})
				job.TotalRecordsToProcess = 1
			})

			cfg, err := gateway.GetConfig(context.TODO(), jobID, deviceID)
			Expect(err).To(BeNil())
			Expect(cfg.Record).To(Equal(map[string]any{"username": "alice"}))
			Expect(cfg.TotalRecords).To(Equal(1))
			Expect(cfg.RecordIndex).To(Equal(0))
		})

		It("refuses config for a finished job", func() {
			deviceID := uuid.New()
			jobID := seedJob(deviceID, func(job *model.WorkflowJob) {
				job.Status = model.JobStatusCompleted
			})

			_, err := gateway.GetConfig(context.TODO(), jobID, deviceID)
			conflict := &service.ErrStatusConflict{}
			Expect(errors.As(err, &conflict)).To(BeTrue())
		})
	})

	Context("device log channel", func() {
		It("stores a device log line against the job", func() {
			deviceID := uuid.New()
			jobID := seedJob(deviceID)

			err := gateway.AppendLog(context.TODO(), jobID, deviceID, &api.LogRequest{
				Level:   "warn",
				Message: "slow ui transition",
				Context: map[string]any{"screen": "feed"},
			})
			Expect(err).To(BeNil())

			logs, err := s.JobLog().List(context.TODO(), jobID, 0)
			Expect(err).To(BeNil())
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].Level).To(Equal("warn"))
			Expect(logs[0].Message).To(Equal("slow ui transition"))
		})

		It("rejects an empty message", func() {
			deviceID := uuid.New()
			jobID := seedJob(deviceID)

			err := gateway.AppendLog(context.TODO(), jobID, deviceID, &api.LogRequest{})
			validation := &service.ErrValidation{}
			Expect(errors.As(err, &validation)).To(BeTrue())
		})
	})

	Context("heartbeat", func() {
		It("accepts the reportable statuses only", func() {
			deviceID := uuid.New()

			Expect(gateway.Heartbeat(context.TODO(), deviceID, &api.HeartbeatRequest{Status: model.DeviceStatusBusy})).To(BeNil())

			device, err := s.Device().Get(context.TODO(), deviceID)
			Expect(err).To(BeNil())
			Expect(device.Status).To(Equal(model.DeviceStatusBusy))

			err = gateway.Heartbeat(context.TODO(), deviceID, &api.HeartbeatRequest{Status: "sleepy"})
			validation := &service.ErrValidation{}
			Expect(errors.As(err, &validation)).To(BeTrue())
		})
	})
})
