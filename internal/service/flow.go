package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/flow"
	"github.com/fleetdeck/fleetdeck/internal/service/mappers"
	"github.com/fleetdeck/fleetdeck/internal/store"
)

type FlowService struct {
	store store.Store
}

func NewFlowService(store store.Store) *FlowService {
	return &FlowService{store: store}
}

// CreateFlow rejects graphs the compiler cannot order, so campaigns never
// reference a flow that fails at dispatch time.
func (s *FlowService) CreateFlow(ctx context.Context, request *api.FlowCreateRequest) (*api.Flow, error) {
	if request.Name == "" {
		return nil, NewErrValidation("flow name is required")
	}
	if _, err := flow.Compile(request.Graph); err != nil {
		return nil, NewErrValidation("invalid flow graph: %v", err)
	}

	created, err := s.store.Flow().Create(ctx, mappers.FlowFromApi(uuid.New(), request))
	if err != nil {
		return nil, err
	}

	result := mappers.FlowToApi(*created)
	return &result, nil
}

func (s *FlowService) GetFlow(ctx context.Context, id uuid.UUID) (*api.Flow, error) {
	flowRow, err := s.store.Flow().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrFlowNotFound(id)
		}
		return nil, err
	}

	result := mappers.FlowToApi(*flowRow)
	return &result, nil
}

func (s *FlowService) ListFlows(ctx context.Context) ([]api.Flow, error) {
	flows, err := s.store.Flow().List(ctx, store.NewFlowQueryFilter())
	if err != nil {
		return nil, err
	}

	result := make([]api.Flow, 0, len(flows))
	for _, f := range flows {
		result = append(result, mappers.FlowToApi(f))
	}
	return result, nil
}

func (s *FlowService) DeleteFlow(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Flow().Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrFlowNotFound(id)
		}
		return err
	}
	return nil
}
