package deviceserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fleetdeck/fleetdeck/internal/config"
	handlers "github.com/fleetdeck/fleetdeck/internal/handlers/v1"
	"github.com/fleetdeck/fleetdeck/internal/progress"
	"github.com/fleetdeck/fleetdeck/internal/service"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/pkg/log"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
	"github.com/fleetdeck/fleetdeck/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

// DeviceServer is the device-facing API server: pending jobs, claims and
// progress reports. It listens on its own address so the fleet can be
// firewalled away from the operator surface.
type DeviceServer struct {
	cfg        *config.Config
	store      store.Store
	listener   net.Listener
	aggregator *progress.Aggregator
}

// New returns a new instance of a fleetdeck device gateway server.
func New(
	cfg *config.Config,
	store store.Store,
	aggregator *progress.Aggregator,
	listener net.Listener,
) *DeviceServer {
	return &DeviceServer{
		cfg:        cfg,
		store:      store,
		aggregator: aggregator,
		listener:   listener,
	}
}

func (s *DeviceServer) Run(ctx context.Context) error {
	zap.S().Named("device_server").Info("Initializing device-side API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("device_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		log.Logger(zap.L(), "router_device"),
		middleware.RequestID,
		chiMiddleware.Recoverer,
	)

	gateway := service.NewDeviceGatewayService(s.store, s.aggregator,
		service.WithPendingJobsLimit(s.cfg.Service.PendingJobsLimit))
	h := handlers.NewGatewayHandler(gateway)
	router.Mount("/api/v1", h.Routes())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := http.Server{Addr: s.cfg.Service.DeviceEndpointAddress, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("device_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	zap.S().Named("device_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
