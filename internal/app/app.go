// Package app wires the daemon together: configuration, logging, metrics,
// the entitlement engine, the reminder scheduler, and the local HTTP surface
// the renderer talks to. Everything is constructed once here and passed down
// explicitly; no package keeps hidden singletons.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mmcore/internal/authority"
	"mmcore/internal/config"
	"mmcore/internal/device"
	"mmcore/internal/entitlement"
	"mmcore/internal/infrastructure"
	"mmcore/internal/migration"
	"mmcore/internal/notify"
	"mmcore/internal/quota"
	"mmcore/internal/reminder"
	"mmcore/internal/security"
	"mmcore/internal/services"
	"mmcore/internal/store"
	handlers "mmcore/internal/transport/http"
	"mmcore/internal/updater"
	"mmcore/internal/verify"
	ws "mmcore/internal/websocket"
)

// Version is set at build time via -ldflags
var Version = "dev"

const stateFileName = "state.json"

// Task names registered with the scheduler
const (
	taskSilentCheck    = "update.silent_check"
	taskReminderEval   = "update.evaluate_reminder"
	taskVerify         = "license.verify"
	taskReengage       = "update.reengagement"
	taskQuotaRollover  = "quota.rollover"
	taskMigrationRetry = "migration.retry"
)

// Application is the daemon's dependency container.
type Application struct {
	Config       *config.Config
	Logger       *slog.Logger
	OTel         *infrastructure.OTelProviders
	Server       *http.Server
	Hub          *ws.Hub
	Scheduler    *reminder.TaskScheduler
	Reminders    *reminder.Scheduler
	Entitlements *entitlement.Store
	Quota        *quota.Tracker
	Verifier     *verify.Verifier
	Updater      *updater.Updater
	Usage        *services.UsageService
	Migration    *migration.Coordinator
	Identity     *device.Identity
}

// NewApplication constructs and wires the full daemon.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	metrics, err := entitlement.InitializeMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	kv, err := store.NewFileStore(filepath.Join(cfg.Paths.DataDir, stateFileName), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	integrity := security.NewManager(kv, logger)
	identity := device.NewIdentity(kv, integrity, logger)

	authClient := authority.NewClient(cfg.Authority, Version, logger)

	usage := services.NewUsageService(authClient, identity, kv, Version, logger)

	migrationCoord := migration.NewCoordinator(authClient, kv, identity.ID, logger)

	hub := ws.NewHub(logger)

	entitlements := entitlement.NewStore(kv, identity, logger,
		entitlement.WithMigrator(migrationCoord),
		entitlement.WithSyncer(usage),
		entitlement.WithMetrics(metrics),
		entitlement.WithChangeListener(func(record entitlement.LicenseRecord) {
			hub.Broadcast(ws.TypeLicenseChanged, record)
		}),
	)
	usage.SetEmailResolver(entitlements.CurrentEmail)

	tracker := quota.NewTracker(kv, entitlements, cfg.Quota.DailyAllowance, cfg.Quota.ResetInterval, logger,
		quota.WithUsageRecorder(usage),
		quota.WithMetrics(metrics),
		quota.WithChangeListener(func(q quota.ScanQuota) {
			hub.Broadcast(ws.TypeQuotaChanged, q)
		}),
	)

	verifier := verify.NewVerifier(
		authClient, entitlements, identity, integrity,
		cfg.Authority.GracePeriod, cfg.Authority.RiskThreshold,
		Version, logger,
		verify.WithMetrics(metrics),
	)

	upd, err := updater.NewUpdater(Version, cfg.Updates.RepoURL, cfg.Updates.RequestTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	notifier := notify.NewNotifier(hub, logger)

	reminders := reminder.NewScheduler(kv, upd, notifier, 7*24*time.Hour, logger,
		reminder.WithMetrics(metrics),
		reminder.WithChangeListener(func(state reminder.State) {
			hub.Broadcast(ws.TypeReminderState, state)
		}),
	)

	entitlementService := services.NewEntitlementService(entitlements, tracker, verifier, identity, logger)

	router := handlers.NewRouter(handlers.RouterDeps{
		License: handlers.NewLicenseHandler(entitlementService, logger),
		Updates: handlers.NewUpdatesHandler(reminders, upd, logger),
		Health:  handlers.NewHealthHandler(Version, hub),
		Hub:     hub,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		Config:       cfg,
		Logger:       logger,
		OTel:         otelProviders,
		Server:       server,
		Hub:          hub,
		Scheduler:    reminder.NewTaskScheduler(logger),
		Reminders:    reminders,
		Entitlements: entitlements,
		Quota:        tracker,
		Verifier:     verifier,
		Updater:      upd,
		Usage:        usage,
		Migration:    migrationCoord,
		Identity:     identity,
	}, nil
}

// Run starts the daemon and blocks until the context is canceled or a fatal
// error occurs.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.startup(ctx)
	a.registerTasks()
	a.Hub.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("daemon listening",
			slog.String("addr", a.Server.Addr),
			slog.String("version", Version),
		)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.Scheduler.Start(gctx, time.Minute)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// startup runs the launch-time sequence: quota initialization, first-launch
// tracking, a security check, and an online verification when one is due.
func (a *Application) startup(ctx context.Context) {
	if err := a.Quota.Initialize(ctx); err != nil {
		a.Logger.Warn("quota initialization failed",
			slog.String("error", err.Error()),
		)
	}

	a.Usage.TrackFirstLaunch(ctx)

	if _, err := a.Verifier.PerformSecurityCheck(ctx); err != nil {
		a.Logger.Warn("startup security check failed",
			slog.String("error", err.Error()),
		)
	}

	if a.Verifier.ShouldVerify() {
		email := a.Entitlements.CurrentEmail()
		if _, err := a.Verifier.Verify(ctx, email); err != nil {
			a.Logger.Warn("startup verification failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// registerTasks wires the recurring background jobs. Every handler is
// check-then-act; a task firing into an already-handled state no-ops.
func (a *Application) registerTasks() {
	cfg := a.Config

	a.Scheduler.Add(taskSilentCheck, cfg.Updates.StartupDelay, cfg.Updates.CheckInterval, func(ctx context.Context) {
		a.Reminders.SilentCheck(ctx)
		a.Reminders.EvaluateReminder(ctx)
	})

	// The evaluate pass runs every minute so the one-hour first backoff fires
	// when it elapses, not at the next multi-hour check.
	a.Scheduler.Add(taskReminderEval, time.Minute, time.Minute, func(ctx context.Context) {
		a.Reminders.EvaluateReminder(ctx)
	})

	a.Scheduler.Add(taskVerify, cfg.Authority.GracePeriod, cfg.Authority.GracePeriod, func(ctx context.Context) {
		if !a.Verifier.ShouldVerify() {
			return
		}
		if _, err := a.Verifier.Verify(ctx, a.Entitlements.CurrentEmail()); err != nil {
			a.Logger.Warn("periodic verification failed",
				slog.String("error", err.Error()),
			)
		}
		if _, err := a.Verifier.PerformSecurityCheck(ctx); err != nil {
			a.Logger.Warn("periodic security check failed",
				slog.String("error", err.Error()),
			)
		}
	})

	a.Scheduler.Add(taskReengage, cfg.Updates.ReengageInterval, cfg.Updates.ReengageInterval, func(ctx context.Context) {
		a.Reminders.WeeklyReengagement(ctx)
	})

	a.Scheduler.Add(taskQuotaRollover, time.Hour, time.Hour, func(ctx context.Context) {
		if err := a.Quota.CheckAndResetIfDue(ctx); err != nil {
			a.Logger.Warn("quota rollover check failed",
				slog.String("error", err.Error()),
			)
		}
	})

	a.Scheduler.Add(taskMigrationRetry, time.Hour, time.Hour, func(ctx context.Context) {
		a.Migration.Retry(ctx)
	})
}

// shutdown tears the daemon down in reverse construction order.
func (a *Application) shutdown() error {
	a.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.Usage.RecordSessionEnd(ctx, authority.PerformanceData{})

	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Warn("http server shutdown failed",
			slog.String("error", err.Error()),
		)
	}

	a.Hub.Stop()

	if err := a.OTel.Shutdown(ctx); err != nil {
		a.Logger.Warn("metrics shutdown failed",
			slog.String("error", err.Error()),
		)
	}

	infrastructure.CloseLogFile()
	return nil
}
