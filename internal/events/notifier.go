package events

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

// Notifier is the push channel port. Emissions are fire-and-forget,
// at-most-once; devices that miss a push pick the job up on their next poll.
type Notifier interface {
	JobNew(ctx context.Context, job *model.WorkflowJob)
	JobStatusChanged(ctx context.Context, job *model.WorkflowJob, reason string)
	StopRequested(ctx context.Context, job *model.WorkflowJob)
}

// ProducerNotifier emits job events through the buffered EventProducer so
// callers never block on the writer.
type ProducerNotifier struct {
	producer *EventProducer
}

// Make sure we conform to Notifier interface
var _ Notifier = (*ProducerNotifier)(nil)

func NewProducerNotifier(producer *EventProducer) *ProducerNotifier {
	return &ProducerNotifier{producer: producer}
}

func (n *ProducerNotifier) JobNew(ctx context.Context, job *model.WorkflowJob) {
	n.emit(ctx, JobNewMessageKind, job, "")
}

func (n *ProducerNotifier) JobStatusChanged(ctx context.Context, job *model.WorkflowJob, reason string) {
	n.emit(ctx, JobStatusMessageKind, job, reason)
}

func (n *ProducerNotifier) StopRequested(ctx context.Context, job *model.WorkflowJob) {
	n.emit(ctx, JobStopMessageKind, job, "stop requested")
}

func (n *ProducerNotifier) emit(ctx context.Context, kind string, job *model.WorkflowJob, reason string) {
	event := JobEvent{
		JobID:    job.ID.String(),
		DeviceID: job.DeviceID.String(),
		Status:   job.Status,
		Reason:   reason,
	}
	if job.CampaignID != nil {
		event.CampaignID = job.CampaignID.String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		zap.S().Named("notifier").Errorw("failed to marshal job event", "error", err, "job_id", job.ID)
		return
	}

	if err := n.producer.Write(ctx, kind, bytes.NewBuffer(data)); err != nil {
		zap.S().Named("notifier").Errorw("failed to write event", "error", err, "event_kind", kind, "job_id", job.ID)
	}
}
