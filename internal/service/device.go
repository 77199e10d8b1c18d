package service

import (
	"context"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/service/mappers"
	"github.com/fleetdeck/fleetdeck/internal/store"
)

// DeviceService is the operator's fleet view.
type DeviceService struct {
	store store.Store
}

func NewDeviceService(store store.Store) *DeviceService {
	return &DeviceService{store: store}
}

func (s *DeviceService) ListDevices(ctx context.Context) ([]api.Device, error) {
	devices, err := s.store.Device().List(ctx, store.NewDeviceQueryFilter())
	if err != nil {
		return nil, err
	}
	result := make([]api.Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, mappers.DeviceToApi(d))
	}
	return result, nil
}
