package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/fleetdeck/fleetdeck/internal/config"
	"github.com/fleetdeck/fleetdeck/internal/dispatch"
	"github.com/fleetdeck/fleetdeck/internal/events"
	handlers "github.com/fleetdeck/fleetdeck/internal/handlers/v1"
	"github.com/fleetdeck/fleetdeck/internal/service"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
	"github.com/fleetdeck/fleetdeck/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

// Server is the operator-facing API server: flows, campaigns, jobs,
// collections and the fleet view.
type Server struct {
	cfg        *config.Config
	store      store.Store
	listener   net.Listener
	dispatcher *dispatch.Dispatcher
	notifier   events.Notifier
}

// New returns a new instance of a fleetdeck operator server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
	dispatcher *dispatch.Dispatcher,
	notifier events.Notifier,
) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		listener:   listener,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	h := handlers.NewServiceHandler(
		service.NewFlowService(s.store),
		service.NewCampaignService(s.store, s.dispatcher, s.notifier),
		service.NewJobService(s.store, s.notifier),
		service.NewDataService(s.store),
		service.NewDeviceService(s.store),
	)
	router.Mount("/api/v1", h.Routes())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
