package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrValidation struct {
	error
}

func NewErrValidation(format string, args ...any) *ErrValidation {
	return &ErrValidation{fmt.Errorf(format, args...)}
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrFlowNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "flow")
}

func NewErrCampaignNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "campaign")
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrCollectionNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "collection")
}

type ErrTaskNotFound struct {
	error
}

func NewErrTaskNotFound(jobID uuid.UUID, nodeID string) *ErrTaskNotFound {
	return &ErrTaskNotFound{fmt.Errorf("job %s has no task for node %q", jobID, nodeID)}
}

// ErrJobOwnership marks a device touching a job assigned to another device.
type ErrJobOwnership struct {
	error
}

func NewErrJobOwnership(jobID, deviceID uuid.UUID) *ErrJobOwnership {
	return &ErrJobOwnership{fmt.Errorf("job %s is not assigned to device %s", jobID, deviceID)}
}

// ErrStatusConflict carries the status the loser of a claim race observed,
// or the current state blocking a lifecycle transition.
type ErrStatusConflict struct {
	error
	CurrentStatus string
}

func NewErrStatusConflict(id uuid.UUID, resourceType, current string) *ErrStatusConflict {
	return &ErrStatusConflict{
		error:         fmt.Errorf("%s %s is %s", resourceType, id, current),
		CurrentStatus: current,
	}
}

func NewErrJobStatusConflict(jobID uuid.UUID, current string) *ErrStatusConflict {
	return NewErrStatusConflict(jobID, "job", current)
}

func NewErrCampaignStatusConflict(campaignID uuid.UUID, current string) *ErrStatusConflict {
	return NewErrStatusConflict(campaignID, "campaign", current)
}
