package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kieran-gray/fern-labour-sub001/pkg/alarm"
	"github.com/kieran-gray/fern-labour-sub001/pkg/config"
	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
	"github.com/kieran-gray/fern-labour-sub001/pkg/middleware"
	"github.com/kieran-gray/fern-labour-sub001/pkg/nats"
	"github.com/kieran-gray/fern-labour-sub001/pkg/notification"
	"github.com/kieran-gray/fern-labour-sub001/pkg/notifier"
	"github.com/kieran-gray/fern-labour-sub001/pkg/observability"
	"github.com/kieran-gray/fern-labour-sub001/pkg/process"
	"github.com/kieran-gray/fern-labour-sub001/pkg/projection"
	"github.com/kieran-gray/fern-labour-sub001/pkg/readmodel"
	"github.com/kieran-gray/fern-labour-sub001/pkg/runner"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store/sqlite"
	"github.com/kieran-gray/fern-labour-sub001/pkg/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the labour event-sourcing system as a supervised process",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Duration("alarm-poll-interval", time.Second, "upper bound on how long the alarm scheduler ever sleeps without a pending alarm")
	serveCmd.Flags().Duration("projection-interval", 5*time.Second, "fallback interval the async projection engine sweeps at regardless of alarms")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	runnerLogger := runner.NewSlogLogger(logger)

	masterSecret, err := resolveMasterSecret(cmd)
	if err != nil {
		return err
	}
	deploymentID, _ := cmd.Flags().GetString("deployment-id")
	cfg, err := config.Load(masterSecret, deploymentID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	es, err := openEventStore(cmd)
	if err != nil {
		return err
	}
	defer es.Close()
	if err := es.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	natsURL, _ := cmd.Flags().GetString("nats-url")
	eventBusCfg := nats.DefaultConfig()
	eventBusCfg.URL = natsURL
	eventBus, err := nats.NewEventBus(eventBusCfg)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer eventBus.Close()

	queue, err := process.NewNATSQueue(natsURL)
	if err != nil {
		return fmt.Errorf("connect effect queue: %w", err)
	}
	defer queue.Close()

	// Observability: traces and metrics are exported straight into the
	// event store's own SQLite database, so there is no dependency on an
	// external collector to get a working deployment.
	traceExporter, err := observability.NewSQLiteTraceExporter(observability.DefaultSQLiteExporterConfig(es.DB()))
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := observability.NewSQLiteMetricExporter(observability.DefaultSQLiteExporterConfig(es.DB()))
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}
	tel, err := observability.Init(cmd.Context(), observability.Config{
		ServiceName:     "labourctl",
		ServiceVersion:  version,
		Environment:     deploymentID,
		TraceExporter:   traceExporter,
		TraceSampleRate: 1.0,
		MetricReader:    sdkmetric.NewPeriodicReader(metricExporter),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer tel.Shutdown(context.Background())

	// Repositories and the command bus.
	labourRepo := labour.NewRepository(es)
	notificationRepo := notification.NewRepository(es)
	bus := eventsourcing.NewCommandBusWithEventBus(eventBus)

	// Read models: an in-memory store kept current synchronously (so a
	// command's caller can read-your-write immediately) and a durable
	// SQLite projection caught up asynchronously from the persisted log.
	syncStore := readmodel.NewStore()
	asyncStore := readmodel.NewSQLiteStore(es.DB())
	checkpoints := sqlite.NewCheckpointStore(es.DB())
	statuses := sqlite.NewProjectionStatusStore(es.DB())
	asyncEngine := projection.NewAsyncEngine(es, checkpoints, statuses, asyncStore)

	// Effect ledger and alarm scheduler driving queued-effect delivery and
	// async projection catch-up per aggregate (spec.md §5).
	ledger := sqlite.NewProcessLedger(sqlite.NewEffectLedgerStore(es.DB()))
	tokenGen := token.NewGenerator(cfg.TokenSalt)
	manager := process.NewManager(bus, labourRepo, ledger, queue, tokenGen.Generate)

	pollInterval, _ := cmd.Flags().GetDuration("alarm-poll-interval")
	scheduler := alarm.NewScheduler(func(ctx context.Context, aggregateID string) error {
		_, err := asyncEngine.RunOnce(ctx)
		return err
	}, alarm.WithLogger(runnerLogger), alarm.WithPollInterval(pollInterval))

	bus.Use(middleware.RecoveryMiddleware(logger))
	bus.Use(middleware.LoggingMiddleware(logger))
	bus.Use(middleware.MetadataValidationMiddleware())
	bus.Use(observability.HandlerMiddleware(tel))
	bus.Use(projection.SyncMiddleware(projection.NewSyncEngine(syncStore)))
	bus.Use(alarm.ScheduleMiddleware(scheduler, cfg.AlarmBatchDelay))

	labour.NewHandlers(labourRepo).Register(bus)
	notification.NewHandlers(notificationRepo).Register(bus)

	// Process manager: evaluates every persisted Labour event against the
	// policy table and turns matches into effects.
	managerSub, err := eventBus.Subscribe(
		eventsourcing.EventFilter{AggregateTypes: []string{labour.AggregateType}},
		manager.HandleEvent,
	)
	if err != nil {
		return fmt.Errorf("subscribe process manager: %w", err)
	}
	defer managerSub.Unsubscribe()

	// Queue drain: delivers non-priority effects the process manager
	// enqueued, alarm-batched (spec.md §4.5/§5).
	drainStop, err := queue.Drain(func(effect process.Effect) error {
		return manager.Dispatch(context.Background(), effect)
	})
	if err != nil {
		return fmt.Errorf("start effect queue drain: %w", err)
	}

	// Notification executor: renders and sends every requested
	// notification, driving it through to DELIVERED or FAILED.
	executor := notifier.NewExecutor(
		bus, notifier.NewTemplateRenderer(), notifier.NewLoggingSender(runnerLogger),
		notifier.WithLogger(runnerLogger),
	)
	executorSub, err := eventBus.Subscribe(
		eventsourcing.EventFilter{AggregateTypes: []string{notification.AggregateType}, EventTypes: []string{notification.EventNotificationRequested}},
		executor.HandleEvent,
	)
	if err != nil {
		return fmt.Errorf("subscribe notification executor: %w", err)
	}
	defer executorSub.Unsubscribe()

	services := []runner.Service{
		scheduler,
		projection.NewEngineService(asyncEngine, mustDuration(cmd, "projection-interval"), runnerLogger),
	}

	r := runner.New(services, runner.WithLogger(runnerLogger))
	runErr := r.Run(cmd.Context())
	if stopErr := drainStop(); stopErr != nil && runErr == nil {
		runErr = stopErr
	}
	return runErr
}

func mustDuration(cmd *cobra.Command, name string) time.Duration {
	d, _ := cmd.Flags().GetDuration(name)
	return d
}
