package worker_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/fleetdeck/fleetdeck/internal/config"
	"github.com/fleetdeck/fleetdeck/internal/progress"
	st "github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
	"github.com/fleetdeck/fleetdeck/internal/worker"
)

const (
	insertSweepDeviceStm = "INSERT INTO devices (id, name, status, last_seen_at) VALUES ('%s', '%s', '%s', now() - interval '%d minutes');"
	insertScheduledStm   = "INSERT INTO workflow_jobs (id, name, device_id, flow_id, status, max_retries, scheduled_at) VALUES ('%s', '%s', '%s', '%s', '%s', 3, %s);"
	insertStalledStm     = "INSERT INTO workflow_jobs (id, name, device_id, flow_id, status, retry_count, max_retries, total_tasks, completed_tasks, failed_tasks, skipped_tasks, updated_at) VALUES ('%s', '%s', '%s', '%s', 'running', %d, %d, %d, 0, 0, 0, now() - interval '%d minutes');"
	insertSweepTaskStm   = "INSERT INTO job_tasks (id, job_id, node_id, node_type, sequence, status) VALUES ('%s', '%s', '%s', 'action', %d, '%s');"
)

type sweepEvent struct {
	kind   string
	jobID  string
	reason string
}

// recordingNotifier captures push emissions instead of writing them anywhere.
type recordingNotifier struct {
	events []sweepEvent
}

func (n *recordingNotifier) JobNew(_ context.Context, job *model.WorkflowJob) {
	n.events = append(n.events, sweepEvent{kind: "new", jobID: job.ID.String()})
}

func (n *recordingNotifier) JobStatusChanged(_ context.Context, job *model.WorkflowJob, reason string) {
	n.events = append(n.events, sweepEvent{kind: "status", jobID: job.ID.String(), reason: reason})
}

func (n *recordingNotifier) StopRequested(_ context.Context, job *model.WorkflowJob) {
	n.events = append(n.events, sweepEvent{kind: "stop", jobID: job.ID.String()})
}

func (n *recordingNotifier) byKind(kind string) []sweepEvent {
	matched := []sweepEvent{}
	for _, e := range n.events {
		if e.kind == kind {
			matched = append(matched, e)
		}
	}
	return matched
}

var _ = Describe("sweeper", Ordered, func() {
	var (
		s        st.Store
		gormdb   *gorm.DB
		notifier *recordingNotifier
		sweeper  *worker.Sweeper
		deviceID uuid.UUID
		flowID   uuid.UUID
	)

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
		notifier = &recordingNotifier{}
		sweeper = worker.NewSweeper(s, notifier, progress.NewAggregator(s, notifier),
			worker.WithStalledJobTimeout(30*time.Minute),
			worker.WithDeviceOfflineTimeout(5*time.Minute))
		deviceID = uuid.New()
		flowID = uuid.New()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from job_logs;")
		gormdb.Exec("DELETE from job_tasks;")
		gormdb.Exec("DELETE from workflow_jobs;")
		gormdb.Exec("DELETE from devices;")
	})

	Context("schedule wake-up", func() {
		It("re-announces a pending job whose schedule arrived", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScheduledStm, jobID, "deferred", deviceID, flowID, "pending", "now() - interval '1 minute'"))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())

			pushed := notifier.byKind("new")
			Expect(pushed).To(HaveLen(1))
			Expect(pushed[0].jobID).To(Equal(jobID.String()))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.ScheduledAt).To(BeNil())
		})

		It("wakes a queued job parked on a chain delay", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScheduledStm, jobID, "delayed-step", deviceID, flowID, "queued", "now() - interval '1 minute'"))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())

			Expect(notifier.byKind("new")).To(HaveLen(0))
			changed := notifier.byKind("status")
			Expect(changed).To(HaveLen(1))
			Expect(changed[0].jobID).To(Equal(jobID.String()))
			Expect(changed[0].reason).To(Equal("schedule due"))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.ScheduledAt).To(BeNil())
		})

		It("leaves future schedules alone", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScheduledStm, jobID, "tomorrow", deviceID, flowID, "pending", "now() + interval '1 hour'"))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())

			Expect(notifier.events).To(HaveLen(0))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.ScheduledAt).ToNot(BeNil())
		})

		It("does not announce the same schedule twice", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScheduledStm, jobID, "deferred", deviceID, flowID, "pending", "now() - interval '1 minute'"))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())
			sweeper.Sweep(context.TODO())

			Expect(notifier.byKind("new")).To(HaveLen(1))
		})
	})

	Context("stalled jobs", func() {
		It("requeues a stalled job that still has retry budget", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertStalledStm, jobID, "stuck", deviceID, flowID, 0, 3, 2, 45))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSweepTaskStm, uuid.New(), jobID, "step-1", 0, "running"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSweepTaskStm, uuid.New(), jobID, "step-2", 1, "pending"))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.RetryCount).To(Equal(1))
			Expect(job.FailedTasks).To(Equal(0))

			tasks, err := s.JobTask().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(tasks).To(HaveLen(2))
			for _, task := range tasks {
				Expect(task.Status).To(Equal(model.TaskStatusPending))
			}

			changed := notifier.byKind("status")
			Expect(changed).To(HaveLen(1))
			Expect(changed[0].reason).To(Equal("retrying failed tasks"))
		})

		It("fails a stalled job once retries are exhausted", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertStalledStm, jobID, "stuck", deviceID, flowID, 3, 3, 1, 45))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSweepTaskStm, uuid.New(), jobID, "step-1", 0, "running"))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.ErrorMessage).To(ContainSubstring("stalled"))
			Expect(job.CompletedAt).ToNot(BeNil())

			tasks, err := s.JobTask().ListByJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(tasks[0].Status).To(Equal(model.TaskStatusFailed))

			changed := notifier.byKind("status")
			Expect(changed).To(HaveLen(1))
			Expect(changed[0].reason).To(Equal("retries exhausted"))
		})

		It("ignores running jobs that reported recently", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertStalledStm, jobID, "healthy", deviceID, flowID, 0, 3, 1, 5))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSweepTaskStm, uuid.New(), jobID, "step-1", 0, "running"))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusRunning))
			Expect(notifier.events).To(HaveLen(0))
		})
	})

	Context("silent devices", func() {
		It("marks devices without recent contact offline", func() {
			quiet := uuid.New()
			busy := uuid.New()
			fresh := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertSweepDeviceStm, quiet, "rack-7", "online", 10))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSweepDeviceStm, busy, "rack-8", "busy", 10))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSweepDeviceStm, fresh, "rack-9", "online", 0))
			Expect(tx.Error).To(BeNil())

			sweeper.Sweep(context.TODO())

			device, err := s.Device().Get(context.TODO(), quiet)
			Expect(err).To(BeNil())
			Expect(device.Status).To(Equal(model.DeviceStatusOffline))

			device, err = s.Device().Get(context.TODO(), busy)
			Expect(err).To(BeNil())
			Expect(device.Status).To(Equal(model.DeviceStatusOffline))

			device, err = s.Device().Get(context.TODO(), fresh)
			Expect(err).To(BeNil())
			Expect(device.Status).To(Equal(model.DeviceStatusOnline))
		})
	})
})
