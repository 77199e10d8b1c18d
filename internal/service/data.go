package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/service/mappers"
	"github.com/fleetdeck/fleetdeck/internal/store"
)

// DataService manages the collections campaigns iterate over.
type DataService struct {
	store store.Store
}

func NewDataService(store store.Store) *DataService {
	return &DataService{store: store}
}

// CreateCollection stores the collection and its records in one
// transaction; positions follow request order.
func (s *DataService) CreateCollection(ctx context.Context, request *api.CollectionCreateRequest) (*api.Collection, error) {
	if request.Name == "" {
		return nil, NewErrValidation("collection name is required")
	}

	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	collection, records := mappers.CollectionFromApi(uuid.New(), request)
	created, err := s.store.Data().CreateCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := s.store.Data().CreateRecords(ctx, records); err != nil {
			return nil, err
		}
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	result := mappers.CollectionToApi(*created, len(records))
	return &result, nil
}

func (s *DataService) GetCollection(ctx context.Context, id uuid.UUID) (*api.Collection, error) {
	collection, err := s.store.Data().GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrCollectionNotFound(id)
		}
		return nil, err
	}

	records, err := s.store.Data().ListRecords(ctx, store.NewRecordQueryFilter().ByCollectionID(id))
	if err != nil {
		return nil, err
	}

	result := mappers.CollectionToApi(*collection, len(records))
	return &result, nil
}

func (s *DataService) ListCollectionRecords(ctx context.Context, id uuid.UUID) ([]api.DataRecordView, error) {
	if _, err := s.store.Data().GetCollection(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrCollectionNotFound(id)
		}
		return nil, err
	}

	records, err := s.store.Data().ListRecords(ctx, store.NewRecordQueryFilter().ByCollectionID(id))
	if err != nil {
		return nil, err
	}

	result := make([]api.DataRecordView, 0, len(records))
	for _, r := range records {
		result = append(result, mappers.RecordToApi(r))
	}
	return result, nil
}
