package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	apiserver "github.com/fleetdeck/fleetdeck/internal/api_server"
	"github.com/fleetdeck/fleetdeck/internal/api_server/deviceserver"
	"github.com/fleetdeck/fleetdeck/internal/config"
	"github.com/fleetdeck/fleetdeck/internal/dispatch"
	"github.com/fleetdeck/fleetdeck/internal/events"
	"github.com/fleetdeck/fleetdeck/internal/planner"
	"github.com/fleetdeck/fleetdeck/internal/progress"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/worker"
	"github.com/fleetdeck/fleetdeck/pkg/log"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fleetdeck api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(context.Background()); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		producer := events.NewEventProducer(&events.StdoutWriter{})
		defer producer.Close()
		notifier := events.NewProducerNotifier(producer)

		dispatcher := dispatch.NewDispatcher(s, planner.New(planner.NewStorePoolSource(s)), notifier,
			dispatch.WithDefaultMaxRetries(cfg.Service.DefaultMaxRetries))
		aggregator := progress.NewAggregator(s, notifier)
		sweeper := worker.NewSweeper(s, notifier, aggregator,
			worker.WithSweepInterval(cfg.Service.SweepInterval),
			worker.WithStalledJobTimeout(cfg.Service.StalledJobTimeout),
			worker.WithDeviceOfflineTimeout(cfg.Service.DeviceOfflineTimeout))

		metrics.RegisterFleetStatsCollector(s)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		apiListener, err := newListener(cfg.Service.Address)
		if err != nil {
			zap.S().Fatalw("creating api listener", "error", err)
		}
		deviceListener, err := newListener(cfg.Service.DeviceEndpointAddress)
		if err != nil {
			zap.S().Fatalw("creating device listener", "error", err)
		}
		metricsListener, err := newListener(cfg.Service.MetricsAddress)
		if err != nil {
			zap.S().Fatalw("creating metrics listener", "error", err)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return apiserver.New(cfg, s, apiListener, dispatcher, notifier).Run(groupCtx)
		})
		group.Go(func() error {
			return deviceserver.New(cfg, s, aggregator, deviceListener).Run(groupCtx)
		})
		group.Go(func() error {
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, metricsListener).Run(groupCtx)
		})
		group.Go(func() error {
			return sweeper.Run(groupCtx)
		})

		if err := group.Wait(); err != nil {
			zap.S().Errorw("service stopped with error", "error", err)
			return err
		}
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
