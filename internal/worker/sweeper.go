package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/progress"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
)

const (
	DefaultSweepInterval        = 30 * time.Second
	DefaultStalledJobTimeout    = 30 * time.Minute
	DefaultDeviceOfflineTimeout = 5 * time.Minute
)

// Sweeper is the safety net for everything the request path can miss: jobs
// parked on a schedule, jobs whose device went silent mid-run, and devices
// that stopped heartbeating. One instance runs per process.
type Sweeper struct {
	store        store.Store
	notifier     events.Notifier
	aggregator   *progress.Aggregator
	interval     time.Duration
	stalledAfter time.Duration
	offlineAfter time.Duration
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = d
	}
}

func WithStalledJobTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.stalledAfter = d
	}
}

func WithDeviceOfflineTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.offlineAfter = d
	}
}

func NewSweeper(st store.Store, n events.Notifier, a *progress.Aggregator, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:        st,
		notifier:     n,
		aggregator:   a,
		interval:     DefaultSweepInterval,
		stalledAfter: DefaultStalledJobTimeout,
		offlineAfter: DefaultDeviceOfflineTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until the context is cancelled. The interval is jittered so
// several replicas never sweep in lockstep.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: time.Second, Mean: 0})
	defer ticker.Stop()

	zap.S().Named("sweeper").Infof("sweeping every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s.Sweep(ctx)
	}
}

// Sweep runs one pass of every check. Exported so tests can drive passes
// directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.wakeScheduled(ctx)
	s.failStalled(ctx)
	s.sweepDevices(ctx)
	s.refreshGauges(ctx)
}

// wakeScheduled re-announces jobs whose scheduled_at arrived: jobs deferred
// at dispatch and chain steps parked on a repeat delay. The push is
// best-effort, polling devices see a due job through the pending list
// regardless.
func (s *Sweeper) wakeScheduled(ctx context.Context) {
	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().
			ByStatus(model.JobStatusPending, model.JobStatusQueued).
			ScheduledDue(time.Now()),
		nil)
	if err != nil {
		zap.S().Named("sweeper").Errorw("listing due jobs failed", "error", err)
		return
	}

	for i := range jobs {
		job := &jobs[i]
		// clear the schedule first so the next pass does not pick the
		// job up again
		woken, err := s.store.Job().UpdateStatusIf(ctx, job.ID,
			[]string{job.Status}, job.Status, map[string]any{"scheduled_at": nil})
		if err != nil {
			if !errors.Is(err, store.ErrConcurrentUpdate) {
				zap.S().Named("sweeper").Errorw("waking due job failed", "error", err, "job_id", job.ID)
			}
			continue
		}

		switch woken.Status {
		case model.JobStatusPending:
			s.notifier.JobNew(ctx, woken)
		default:
			s.notifier.JobStatusChanged(ctx, woken, "schedule due")
		}
		zap.S().Named("sweeper").Infow("job schedule due", "job_id", woken.ID, "status", woken.Status)
	}
}

// failStalled treats a running job with no report activity inside the window
// as a device-reported failure. The retry policy then has the last word,
// exactly as for an explicit failure verdict.
func (s *Sweeper) failStalled(ctx context.Context) {
	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().
			ByStatus(model.JobStatusRunning).
			StalledSince(time.Now().Add(-s.stalledAfter)),
		nil)
	if err != nil {
		zap.S().Named("sweeper").Errorw("listing stalled jobs failed", "error", err)
		return
	}

	for i := range jobs {
		job := &jobs[i]
		zap.S().Named("sweeper").Warnw("job stalled",
			"job_id", job.ID, "device_id", job.DeviceID, "last_update", job.UpdatedAt)

		report := api.CompletionRequest{
			ErrorMessage: fmt.Sprintf("ExecutionError: job stalled, no progress for %s", s.stalledAfter),
		}
		if _, err := s.aggregator.HandleCompletion(ctx, job.ID, report); err != nil {
			zap.S().Named("sweeper").Errorw("failing stalled job failed", "error", err, "job_id", job.ID)
		}
	}
}

// sweepDevices derives the offline status: no poll or heartbeat within the
// window means the device is gone.
func (s *Sweeper) sweepDevices(ctx context.Context) {
	flipped, err := s.store.Device().MarkOffline(ctx, time.Now().Add(-s.offlineAfter))
	if err != nil {
		zap.S().Named("sweeper").Errorw("marking devices offline failed", "error", err)
		return
	}
	if flipped > 0 {
		zap.S().Named("sweeper").Infof("marked %d device(s) offline", flipped)
	}
}

// refreshGauges publishes the fleet rollup. Absent statuses are written as
// zero so a gauge falls back down once the last row leaves its state.
func (s *Sweeper) refreshGauges(ctx context.Context) {
	stats, err := s.store.Statistics(ctx)
	if err != nil {
		zap.S().Named("sweeper").Errorw("reading fleet statistics failed", "error", err)
		return
	}

	for _, status := range []string{
		model.JobStatusPending, model.JobStatusQueued, model.JobStatusRunning,
		model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled,
	} {
		metrics.UpdateJobStateCounterMetric(status, stats.JobsByStatus[status])
	}
	for _, status := range []string{
		model.DeviceStatusOnline, model.DeviceStatusOffline, model.DeviceStatusBusy,
	} {
		metrics.UpdateDeviceStateCounterMetric(status, stats.DevicesByStatus[status])
	}
}
