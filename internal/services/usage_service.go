package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"mmcore/internal/authority"
	"mmcore/internal/device"
	"mmcore/internal/entitlement"
	"mmcore/internal/store"
)

const downloadTrackedKey = "memory_monster_download_tracked"

// UsageService reports usage analytics to the remote authority and pushes
// subscription changes. Every method is best-effort: failures are logged and
// never reach the operation that triggered them.
type UsageService struct {
	client   *authority.Client
	identity *device.Identity
	kv       store.KeyValueStore
	logger   *slog.Logger
	version  string
	started  time.Time
	emailFn  func() string
}

// NewUsageService creates the usage reporter
func NewUsageService(client *authority.Client, identity *device.Identity, kv store.KeyValueStore, version string, logger *slog.Logger) *UsageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageService{
		client:   client,
		identity: identity,
		kv:       kv,
		logger:   logger,
		version:  version,
		started:  time.Now(),
	}
}

// SetEmailResolver wires the effective-email lookup. The entitlement store
// provides it after construction; until then usage is keyed to the anonymous
// identity.
func (s *UsageService) SetEmailResolver(fn func() string) {
	s.emailFn = fn
}

func (s *UsageService) email() string {
	if s.emailFn != nil {
		return s.emailFn()
	}
	return s.identity.AnonymousEmail()
}

// RecordScan reports one scan with the features it exercised.
func (s *UsageService) RecordScan(ctx context.Context, features []string) {
	err := s.client.TrackUsage(ctx, s.email(), s.identity.ID(),
		authority.SessionData{
			AppVersion:             s.version,
			SessionDurationMinutes: s.sessionMinutes(),
		},
		authority.PerformanceData{
			ScansPerformed: 1,
			FeaturesUsed:   features,
		},
	)
	if err != nil {
		s.logger.Debug("scan usage tracking failed",
			slog.String("error", err.Error()),
		)
	}
}

// RecordDailyReset reports how many scans the quota window consumed before
// rolling over.
func (s *UsageService) RecordDailyReset(ctx context.Context, scansUsed int) {
	err := s.client.TrackUsage(ctx, s.email(), s.identity.ID(),
		authority.SessionData{
			AppVersion:             s.version,
			SessionDurationMinutes: s.sessionMinutes(),
		},
		authority.PerformanceData{
			ScansPerformed: scansUsed,
			DailyReset:     true,
		},
	)
	if err != nil {
		s.logger.Debug("daily reset tracking failed",
			slog.String("error", err.Error()),
		)
	}
}

// SyncSubscription pushes the record's plan to the authority after a license
// change.
func (s *UsageService) SyncSubscription(ctx context.Context, record entitlement.LicenseRecord, email string) {
	now := time.Now()
	err := s.client.SyncSubscription(ctx, email, s.identity.ID(), authority.SubscriptionData{
		PlanID:             record.Status.PlanID(),
		Status:             record.Status.SubscriptionState(),
		CurrentPeriodStart: record.PeriodStart(now),
		CurrentPeriodEnd:   record.PeriodEnd(now),
		TrialEnd:           record.TrialEnd,
	})
	if err != nil {
		s.logger.Debug("subscription sync failed",
			slog.String("error", err.Error()),
		)
	}
}

// TrackFirstLaunch reports the installation to the authority exactly once
// per install.
func (s *UsageService) TrackFirstLaunch(ctx context.Context) {
	if _, ok := s.kv.Get(downloadTrackedKey); ok {
		return
	}

	platform := runtime.GOOS
	if platform == "darwin" {
		platform = "macos"
	}

	if err := s.client.TrackDownload(ctx, s.identity.AnonymousEmail(), s.identity.ID(), platform); err != nil {
		s.logger.Debug("download tracking failed, will retry next launch",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.kv.Set(downloadTrackedKey, time.Now().Format(time.RFC3339)); err != nil {
		s.logger.Warn("failed to persist download tracking flag",
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("first launch tracked")
}

// RecordSessionEnd reports the session summary on shutdown.
func (s *UsageService) RecordSessionEnd(ctx context.Context, perf authority.PerformanceData) {
	err := s.client.TrackUsage(ctx, s.email(), s.identity.ID(),
		authority.SessionData{
			AppVersion:             s.version,
			SessionDurationMinutes: s.sessionMinutes(),
		},
		perf,
	)
	if err != nil {
		s.logger.Debug("session tracking failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *UsageService) sessionMinutes() int {
	return int(time.Since(s.started).Minutes())
}
