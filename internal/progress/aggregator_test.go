package progress_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/config"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/progress"
	st "github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

type push struct {
	kind   string
	jobID  string
	reason string
}

type pushRecorder struct {
	pushes []push
}

func (n *pushRecorder) JobNew(_ context.Context, job *model.WorkflowJob) {
	n.pushes = append(n.pushes, push{kind: "new", jobID: job.ID.String()})
}

func (n *pushRecorder) JobStatusChanged(_ context.Context, job *model.WorkflowJob, reason string) {
	n.pushes = append(n.pushes, push{kind: "status", jobID: job.ID.String(), reason: reason})
}

func (n *pushRecorder) StopRequested(_ context.Context, job *model.WorkflowJob) {
	n.pushes = append(n.pushes, push{kind: "stop", jobID: job.ID.String()})
}

func (n *pushRecorder) reasons() []string {
	reasons := make([]string, 0, len(n.pushes))
	for _, p := range n.pushes {
		if p.kind == "status" {
			reasons = append(reasons, p.reason)
		}
	}
	return reasons
}

var _ = events.Notifier(&pushRecorder{})

var _ = Describe("progress aggregator", Ordered, func() {
	var (
		s          st.Store
		gormdb     *gorm.DB
		notifier   *pushRecorder
		aggregator *progress.Aggregator
		deviceID   uuid.UUID
	)

	// A claimed single-flow job with two pending tasks, the shape the
	// dispatcher leaves behind once a device wins the claim.
	seedJob := func(maxRetries int, mods ...func(*model.WorkflowJob)) uuid.UUID {
		jobID := uuid.New()
		flowID := uuid.New()
		job := model.WorkflowJob{
			ID:            jobID,
			Name:          "seeded run",
			FlowID:        &flowID,
			DeviceID:      deviceID,
			Status:        model.JobStatusQueued,
			Priority:      5,
			ExecutionMode: "sequential",
			MaxRetries:    maxRetries,
			TotalTasks:    2,
			Tasks: []model.JobTask{
				{ID: uuid.New(), JobID: jobID, NodeID: "login", NodeType: "action", Sequence: 0, Status: model.TaskStatusPending},
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

	// A claimed two-step chain job: the first item's single task is
	// materialized, the second holds only its template snapshot.
	seedChainJob := func(maxRetries int, secondDelay int) uuid.UUID {
		jobID := uuid.New()
		flowA := uuid.New()
		flowB := uuid.New()
		itemA := model.JobWorkflowItem{
			ID: uuid.New(), JobID: jobID, FlowID: flowA, Sequence: 0,
			Status: model.TaskStatusPending, TotalTasks: 1,
			Config: model.MakeJSONField(model.ItemConfig{
				Templates: []api.TaskTemplate{{NodeID: "probe", NodeType: "action", Sequence: 0}},
			}),
		}
		itemB := model.JobWorkflowItem{
			ID: uuid.New(), JobID: jobID, FlowID: flowB, Sequence: 1,
			Status: model.TaskStatusPending,
			Config: model.MakeJSONField(model.ItemConfig{
				Templates: []api.TaskTemplate{
					{NodeID: "open", NodeType: "action", Sequence: 0},
					{NodeID: "submit", NodeType: "action", Sequence: 1},
				},
				DelaySeconds: secondDelay,
			}),
		}
		job := model.WorkflowJob{
			ID:            jobID,
			Name:          "seeded chain",
			DeviceID:      deviceID,
			Status:        model.JobStatusQueued,
			Priority:      5,
			ExecutionMode: "sequential",
			MaxRetries:    maxRetries,
			TotalTasks:    1,
			WorkflowChain: model.MakeJSONField([]uuid.UUID{flowA, flowB}),
			Items:         []model.JobWorkflowItem{itemA, itemB},
			Tasks: []model.JobTask{
				{ID: uuid.New(), JobID: jobID, ItemID: &itemA.ID, NodeID: "probe", NodeType: "action", Sequence: 0, Status: model.TaskStatusPending},
			},
		}
		_, err := s.Job().Create(context.TODO(), job)
		Expect(err).To(BeNil())
		return jobID
	}

	reportDone := func(jobID uuid.UUID, nodeID string) *model.WorkflowJob {
		job, err := aggregator.HandleTaskReport(context.TODO(), jobID, nodeID, api.TaskProgressRequest{Status: model.TaskStatusCompleted})
		Expect(err).To(BeNil())
		return job
	}

	logMessages := func(jobID uuid.UUID) []string {
		logs, err := s.JobLog().List(context.TODO(), jobID, 0)
		Expect(err).To(BeNil())
		messages := make([]string, 0, len(logs))
		for _, entry := range logs {
			messages = append(messages, entry.Message)
		}
		return messages
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
		notifier = &pushRecorder{}
		aggregator = progress.NewAggregator(s, notifier)
		deviceID = uuid.New()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from job_logs;")
		gormdb.Exec("DELETE from job_tasks;")
		gormdb.Exec("DELETE from job_workflow_items;")
		gormdb.Exec("DELETE from workflow_jobs;")
	})

	Context("start reports", func() {
		It("moves a claimed job to running", func() {
			jobID := seedJob(3)

			job, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusRunning))
			Expect(job.StartedAt).ToNot(BeNil())
			Expect(notifier.reasons()).To(Equal([]string{"started"}))
		})

		It("absorbs a duplicate start without a second push", func() {
			jobID := seedJob(3)

			_, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())
			job, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusRunning))

			Expect(notifier.reasons()).To(Equal([]string{"started"}))
			Expect(logMessages(jobID)).To(ContainElement("duplicate start report ignored"))
		})

		It("never revives a finished job", func() {
			jobID := seedJob(3, func(job *model.WorkflowJob) {
				job.Status = model.JobStatusCompleted
			})

			job, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(notifier.pushes).To(HaveLen(0))
		})
	})

	Context("task reports", func() {
		It("walks tasks to completion and closes out the job", func() {
			jobID := seedJob(3)

			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "login", api.TaskProgressRequest{Status: model.TaskStatusRunning})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusRunning))

			job, err = aggregator.HandleTaskReport(context.TODO(), jobID, "login", api.TaskProgressRequest{
				Status:     model.TaskStatusCompleted,
				OutputData: map[string]any{"outputs": map[string]any{"session": "tok-1"}},
				DurationMs: 1200,
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusRunning))
			Expect(job.CompletedTasks).To(Equal(1))

			job = reportDone(jobID, "post")
			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(job.CompletedAt).ToNot(BeNil())
			Expect(job.CompletedTasks).To(Equal(2))
			Expect(job.FailedTasks).To(Equal(0))

			tasks, err := s.JobTask().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(tasks[0].Status).To(Equal(model.TaskStatusCompleted))
			Expect(tasks[0].DurationMs).To(Equal(int64(1200)))
			Expect(tasks[0].OutputData.Data).To(HaveKey("outputs"))
			Expect(tasks[0].CompletedAt).ToNot(BeNil())

			Expect(notifier.reasons()).To(Equal([]string{"started", "completed"}))
		})

		It("keeps counters exact under duplicate terminal reports", func() {
			jobID := seedJob(3)

			reportDone(jobID, "login")
			job := reportDone(jobID, "login")
			Expect(job.CompletedTasks).To(Equal(1))
			Expect(logMessages(jobID)).To(ContainElement("report for task login ignored: already completed"))

			job = reportDone(jobID, "post")
			Expect(job.CompletedTasks).To(Equal(job.TotalTasks))
		})

		It("ignores a running report that arrives after the verdict", func() {
			jobID := seedJob(3)

			reportDone(jobID, "login")
			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "login", api.TaskProgressRequest{Status: model.TaskStatusRunning})
			Expect(err).To(BeNil())
			Expect(job.CompletedTasks).To(Equal(1))

			task, err := s.JobTask().GetByNode(context.TODO(), jobID, nil, "login")
			Expect(err).To(BeNil())
			Expect(task.Status).To(Equal(model.TaskStatusCompleted))
		})

		It("rejects statuses it does not know", func() {
			jobID := seedJob(3)

			_, err := aggregator.HandleTaskReport(context.TODO(), jobID, "login", api.TaskProgressRequest{Status: "exploded"})
			Expect(errors.Is(err, progress.ErrUnknownTaskStatus)).To(BeTrue())
		})

		It("counts a skipped task against the scope without failing it", func() {
			jobID := seedJob(3)

			_, err := aggregator.HandleTaskReport(context.TODO(), jobID, "login", api.TaskProgressRequest{
				Status: model.TaskStatusSkipped,
				Reason: "element not present",
			})
			Expect(err).To(BeNil())

			job := reportDone(jobID, "post")
			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(job.SkippedTasks).To(Equal(1))
			Expect(job.CompletedTasks).To(Equal(1))
			Expect(job.FailedTasks).To(Equal(0))
		})
	})

	Context("retry policy", func() {
		It("requeues failed work until the budget runs out, then fails", func() {
			jobID := seedJob(3)
			reportDone(jobID, "login")

			for attempt := 1; attempt <= 3; attempt++ {
				job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "post", api.TaskProgressRequest{
					Status:       model.TaskStatusFailed,
					ErrorMessage: fmt.Sprintf("ElementNotFound: post button (try %d)", attempt),
				})
				Expect(err).To(BeNil())
				Expect(job.Status).To(Equal(model.JobStatusQueued))
				Expect(job.RetryCount).To(Equal(attempt))
				Expect(job.FailedTasks).To(Equal(0))
				Expect(job.ErrorMessage).To(BeEmpty())

				task, err := s.JobTask().GetByNode(context.TODO(), jobID, nil, "post")
				Expect(err).To(BeNil())
				Expect(task.Status).To(Equal(model.TaskStatusPending))
			}

			// completed work is never re-run by a retry
			task, err := s.JobTask().GetByNode(context.TODO(), jobID, nil, "login")
			Expect(err).To(BeNil())
			Expect(task.Status).To(Equal(model.TaskStatusCompleted))

			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "post", api.TaskProgressRequest{
				Status:       model.TaskStatusFailed,
				ErrorMessage: "ElementNotFound: post button (try 4)",
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.RetryCount).To(Equal(3))
			Expect(job.ErrorMessage).To(Equal("ElementNotFound: post button (try 4)"))
			Expect(job.CompletedAt).ToNot(BeNil())

			Expect(notifier.reasons()).To(Equal([]string{
				"retrying failed tasks",
				"retrying failed tasks",
				"retrying failed tasks",
				"retries exhausted",
			}))
		})

		It("fails immediately when the job carries no budget", func() {
			jobID := seedJob(0)
			reportDone(jobID, "login")

			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "post", api.TaskProgressRequest{
				Status:       model.TaskStatusFailed,
				ErrorMessage: "SessionExpired",
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.RetryCount).To(Equal(0))
			Expect(job.ErrorMessage).To(Equal("SessionExpired"))
		})
	})

	Context("terminal jobs", func() {
		It("absorbs any late report without changing state", func() {
			jobID := seedJob(3)
			reportDone(jobID, "login")
			reportDone(jobID, "post")

			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "login", api.TaskProgressRequest{Status: model.TaskStatusFailed})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusCompleted))

			job, err = aggregator.HandleCompletion(context.TODO(), jobID, api.CompletionRequest{Success: false, ErrorMessage: "late verdict"})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusCompleted))

			refreshed, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(refreshed.Status).To(Equal(model.JobStatusCompleted))
			Expect(refreshed.CompletedTasks).To(Equal(2))
			Expect(refreshed.FailedTasks).To(Equal(0))
			Expect(refreshed.ErrorMessage).To(BeEmpty())

			Expect(logMessages(jobID)).To(ContainElement("report for task login ignored: job already completed"))
			Expect(logMessages(jobID)).To(ContainElement("completion report ignored: job already completed"))
		})
	})

	Context("device verdicts", func() {
		It("skips open work when the device declares success", func() {
			jobID := seedJob(3)
			reportDone(jobID, "login")

			job, err := aggregator.HandleCompletion(context.TODO(), jobID, api.CompletionRequest{
				Success: true,
				Result:  map[string]any{"posted": 1},
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(job.CompletedTasks).To(Equal(1))
			Expect(job.SkippedTasks).To(Equal(1))

			task, err := s.JobTask().GetByNode(context.TODO(), jobID, nil, "post")
			Expect(err).To(BeNil())
			Expect(task.Status).To(Equal(model.TaskStatusSkipped))

			Expect(notifier.reasons()).To(Equal([]string{"completed"}))
			Expect(logMessages(jobID)).To(ContainElement("job completed by device"))
		})

		It("fails open tasks then retries when the device declares failure", func() {
			jobID := seedJob(3)
			reportDone(jobID, "login")

			job, err := aggregator.HandleCompletion(context.TODO(), jobID, api.CompletionRequest{
				Success:      false,
				ErrorMessage: "ExecutionError: app crashed",
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.RetryCount).To(Equal(1))

			task, err := s.JobTask().GetByNode(context.TODO(), jobID, nil, "post")
			Expect(err).To(BeNil())
			Expect(task.Status).To(Equal(model.TaskStatusPending))

			Expect(notifier.reasons()).To(Equal([]string{"retrying failed tasks"}))
		})

		It("fails the job outright once the budget is gone", func() {
			jobID := seedJob(0)

			job, err := aggregator.HandleCompletion(context.TODO(), jobID, api.CompletionRequest{
				Success:      false,
				ErrorMessage: "ExecutionError: app crashed",
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.ErrorMessage).To(Equal("ExecutionError: app crashed"))
			Expect(job.FailedTasks).To(Equal(2))

			Expect(notifier.reasons()).To(Equal([]string{"retries exhausted"}))
		})

		It("honors the verdict on a job with nothing left to close", func() {
			// reports can never settle a zero-task job, the verdict is the
			// only way out
			jobID := seedJob(3, func(job *model.WorkflowJob) {
				job.TotalTasks = 0
				job.Tasks = nil
			})

			job, err := aggregator.HandleCompletion(context.TODO(), jobID, api.CompletionRequest{Success: false})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.ErrorMessage).To(Equal("device reported failure"))
			Expect(job.RetryCount).To(Equal(0))

			Expect(notifier.reasons()).To(Equal([]string{"failed by device"}))
		})
	})

	Context("chained jobs", func() {
		It("advances the chain, carrying captured outputs forward", func() {
			jobID := seedChainJob(3, 0)

			_, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())

			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "probe", api.TaskProgressRequest{
				Status:     model.TaskStatusCompleted,
				OutputData: map[string]any{"outputs": map[string]any{"session": "tok-1"}},
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.CurrentChainIndex).To(Equal(1))
			Expect(job.TotalTasks).To(Equal(3))
			Expect(job.ChainContext.Data).To(HaveKeyWithValue("session", "tok-1"))
			Expect(job.ScheduledAt).To(BeNil())

			items, err := s.JobItem().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(items[0].Status).To(Equal(model.TaskStatusCompleted))
			Expect(items[0].CompletedTasks).To(Equal(1))
			Expect(items[1].Status).To(Equal(model.TaskStatusPending))
			Expect(items[1].TotalTasks).To(Equal(2))

			tasks, err := s.JobTask().ListByItem(context.TODO(), items[1].ID)
			Expect(err).To(BeNil())
			Expect(tasks).To(HaveLen(2))

			// the device re-claims the queued job and runs the second step
			_, err = aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())
			reportDone(jobID, "open")
			job = reportDone(jobID, "submit")

			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(job.CompletedTasks).To(Equal(3))

			items, err = s.JobItem().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(items[1].Status).To(Equal(model.TaskStatusCompleted))

			Expect(notifier.reasons()).To(Equal([]string{"started", "chain advanced", "started", "completed"}))
			Expect(logMessages(jobID)).To(ContainElement("chain advanced to step 1"))
		})

		It("parks the job when the next step asks for a delay", func() {
			jobID := seedChainJob(3, 120)

			_, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())
			job := reportDone(jobID, "probe")

			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.ScheduledAt).ToNot(BeNil())
		})

		It("skips the rest of the chain when a step exhausts the budget", func() {
			jobID := seedChainJob(0, 0)

			_, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())

			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "probe", api.TaskProgressRequest{
				Status:       model.TaskStatusFailed,
				ErrorMessage: "LoginFailed: captcha",
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.ErrorMessage).To(Equal("LoginFailed: captcha"))

			items, err := s.JobItem().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(items[0].Status).To(Equal(model.TaskStatusFailed))
			Expect(items[1].Status).To(Equal(model.TaskStatusSkipped))
		})

		It("closes a chain mid-step on a success verdict", func() {
			jobID := seedChainJob(3, 0)

			_, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())

			job, err := aggregator.HandleCompletion(context.TODO(), jobID, api.CompletionRequest{Success: true})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(job.SkippedTasks).To(Equal(1))

			items, err := s.JobItem().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(items[0].Status).To(Equal(model.TaskStatusCompleted))
			Expect(items[1].Status).To(Equal(model.TaskStatusSkipped))
		})
	})

	Context("record iteration", func() {
		It("rewinds tasks per record and completes after the last", func() {
			records := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
			collectionID := uuid.New()
			jobID := seedJob(3, func(job *model.WorkflowJob) {
				job.DataCollectionID = &collectionID
				job.DataRecordIDs = model.MakeJSONField(records)
				job.TotalRecordsToProcess = len(records)
				job.ChainContext = model.MakeJSONField(map[string]any{
					"pools.account": "alice",
					"scratch":       "per-record",
				})
			})

			_, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())

			// first record pass
			reportDone(jobID, "login")
			job := reportDone(jobID, "post")
			Expect(job.Status).To(Equal(model.JobStatusRunning))
			Expect(job.CurrentRecordIndex).To(Equal(1))
			Expect(job.RecordsProcessed).To(Equal(1))
			Expect(job.CompletedTasks).To(Equal(0))

			// pool context survives the advance, per-record state does not
			Expect(job.ChainContext.Data).To(HaveKeyWithValue("pools.account", "alice"))
			Expect(job.ChainContext.Data).ToNot(HaveKey("scratch"))

			tasks, err := s.JobTask().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(tasks).To(HaveLen(2))
			for _, task := range tasks {
				Expect(task.Status).To(Equal(model.TaskStatusPending))
			}

			// second record pass
			reportDone(jobID, "login")
			job = reportDone(jobID, "post")
			Expect(job.CurrentRecordIndex).To(Equal(2))
			Expect(job.RecordsProcessed).To(Equal(2))

			// final record pass closes the job
			reportDone(jobID, "login")
			job = reportDone(jobID, "post")
			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(job.RecordsProcessed).To(Equal(3))
			Expect(job.RecordsFailed).To(Equal(0))

			Expect(notifier.reasons()).To(Equal([]string{"started", "next record", "next record", "completed"}))
			Expect(logMessages(jobID)).To(ContainElement("advancing to record 2 of 3"))
		})

		It("counts a failed record when retries run out", func() {
			records := []uuid.UUID{uuid.New(), uuid.New()}
			jobID := seedJob(0, func(job *model.WorkflowJob) {
				job.DataRecordIDs = model.MakeJSONField(records)
				job.TotalRecordsToProcess = len(records)
			})

			_, err := aggregator.HandleStarted(context.TODO(), jobID)
			Expect(err).To(BeNil())

			reportDone(jobID, "login")
			job, err := aggregator.HandleTaskReport(context.TODO(), jobID, "post", api.TaskProgressRequest{
				Status:       model.TaskStatusFailed,
				ErrorMessage: "RateLimited",
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.RecordsFailed).To(Equal(1))
			Expect(job.RecordsProcessed).To(Equal(0))
		})
	})
})
