// Package quota enforces the rolling daily allowance of free-tier scans.
// The reset is evaluated lazily on read rather than on its own timer, so the
// rollover cannot drift, and every mutation is idempotent within a reset
// window.
package quota

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"mmcore/internal/entitlement"
	"mmcore/internal/store"
)

const scansKey = "memory_monster_scans"

// UnlimitedSentinel is what RemainingOrUnlimited reports for paid tiers.
const UnlimitedSentinel = 999

// ScanQuota is the persisted quota state
type ScanQuota struct {
	Remaining int       `json:"remaining"`
	Used      int       `json:"used"`
	LastReset time.Time `json:"last_reset"`
}

// ResetCountdown describes the time left until the next daily rollover
type ResetCountdown struct {
	Hours         int       `json:"hours"`
	NextResetTime time.Time `json:"next_reset_time"`
	LastResetTime time.Time `json:"last_reset_time"`
}

// AccessChecker is the slice of the entitlement store the tracker needs.
type AccessChecker interface {
	CanAccess(feature entitlement.FeatureID) bool
}

// UsageRecorder receives usage analytics. Best-effort: implementations log
// failures and never propagate them.
type UsageRecorder interface {
	RecordScan(ctx context.Context, features []string)
	RecordDailyReset(ctx context.Context, scansUsed int)
}

// Tracker enforces the daily free-tier scan allowance.
type Tracker struct {
	kv        store.KeyValueStore
	access    AccessChecker
	usage     UsageRecorder
	logger    *slog.Logger
	metrics   *entitlement.Metrics
	allowance int
	interval  time.Duration
	now       func() time.Time
	onChange  func(ScanQuota)
}

// Option configures optional tracker collaborators
type Option func(*Tracker)

// WithUsageRecorder wires the analytics hand-off
func WithUsageRecorder(u UsageRecorder) Option {
	return func(t *Tracker) { t.usage = u }
}

// WithMetrics wires the otel metrics
func WithMetrics(m *entitlement.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithChangeListener registers a callback invoked after every persisted
// quota change.
func WithChangeListener(fn func(ScanQuota)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates the quota tracker with the given daily allowance and
// reset interval.
func NewTracker(kv store.KeyValueStore, access AccessChecker, allowance int, interval time.Duration, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		kv:        kv,
		access:    access,
		logger:    logger,
		allowance: allowance,
		interval:  interval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize persists the full allowance on first run only. Subsequent calls
// evaluate the lazy rollover instead.
func (t *Tracker) Initialize(ctx context.Context) error {
	if _, ok := t.kv.Get(scansKey); !ok {
		return t.persist(ScanQuota{
			Remaining: t.allowance,
			Used:      0,
			LastReset: t.now(),
		})
	}
	return t.CheckAndResetIfDue(ctx)
}

// CheckAndResetIfDue performs the daily rollover when the reset interval has
// elapsed. Paid tiers skip it entirely. Idempotent: a second call within the
// same due window finds LastReset already current and does nothing. The
// scans used before the reset are handed to the usage recorder.
func (t *Tracker) CheckAndResetIfDue(ctx context.Context) error {
	if t.unlimited() {
		return nil
	}

	quota, ok := t.load()
	if !ok {
		return nil
	}

	elapsed := t.now().Sub(quota.LastReset)
	if elapsed < t.interval {
		return nil
	}

	usedBefore := quota.Used
	t.logger.Info("resetting daily scan quota",
		slog.Duration("since_last_reset", elapsed),
		slog.Int("scans_used", usedBefore),
	)

	if err := t.reset(); err != nil {
		return err
	}

	if t.usage != nil {
		t.usage.RecordDailyReset(ctx, usedBefore)
	}
	if t.metrics != nil {
		t.metrics.RecordQuotaReset(ctx, usedBefore)
	}
	return nil
}

// Decrement consumes one scan. Paid tiers record usage for analytics without
// touching the persisted quota; free tiers move one unit from remaining to
// used, and a call at zero remaining is a no-op.
func (t *Tracker) Decrement(ctx context.Context) error {
	if t.unlimited() {
		if t.usage != nil {
			t.usage.RecordScan(ctx, []string{string(entitlement.FeatureUnlimitedScans)})
		}
		return nil
	}

	quota, ok := t.load()
	if !ok {
		return nil
	}
	if quota.Remaining <= 0 {
		return nil
	}

	quota.Remaining--
	quota.Used++
	if err := t.persist(quota); err != nil {
		return err
	}

	if t.usage != nil {
		t.usage.RecordScan(ctx, []string{string(entitlement.FeatureBasicScan)})
	}
	if t.metrics != nil {
		t.metrics.RecordQuotaDecrement(ctx)
	}
	return nil
}

// RemainingOrUnlimited returns the sentinel for paid tiers, otherwise the
// persisted remaining count floored at zero. The lazy rollover runs first so
// a stale window never under-reports.
func (t *Tracker) RemainingOrUnlimited(ctx context.Context) int {
	if t.unlimited() {
		return UnlimitedSentinel
	}

	if err := t.CheckAndResetIfDue(ctx); err != nil {
		t.logger.Warn("daily reset check failed",
			slog.String("error", err.Error()),
		)
	}

	quota, ok := t.load()
	if !ok {
		return t.allowance
	}
	if quota.Remaining < 0 {
		return 0
	}
	return quota.Remaining
}

// Snapshot returns the persisted quota state without side effects
func (t *Tracker) Snapshot() (ScanQuota, bool) {
	return t.load()
}

// TimeUntilReset returns the countdown to the next rollover, nil for paid
// tiers or when no quota record exists. Hours use ceiling division and are
// clamped at zero.
func (t *Tracker) TimeUntilReset() *ResetCountdown {
	if t.unlimited() {
		return nil
	}

	quota, ok := t.load()
	if !ok {
		return nil
	}

	now := t.now()
	nextReset := quota.LastReset.Add(t.interval)
	if !nextReset.After(now) {
		return &ResetCountdown{
			Hours:         0,
			NextResetTime: now,
			LastResetTime: quota.LastReset,
		}
	}

	hours := int(math.Ceil(nextReset.Sub(now).Hours()))
	return &ResetCountdown{
		Hours:         hours,
		NextResetTime: nextReset,
		LastResetTime: quota.LastReset,
	}
}

// ResetToFull restores the full allowance immediately. Used by the free-tier
// simulation reset.
func (t *Tracker) ResetToFull() error {
	return t.reset()
}

func (t *Tracker) unlimited() bool {
	return t.access.CanAccess(entitlement.FeatureUnlimitedScans)
}

// load reads the quota record; corrupt data resets to a safe full allowance.
func (t *Tracker) load() (ScanQuota, bool) {
	raw, ok := t.kv.Get(scansKey)
	if !ok {
		return ScanQuota{}, false
	}

	var quota ScanQuota
	if err := json.Unmarshal([]byte(raw), &quota); err != nil {
		t.logger.Warn("scan quota corrupt, resetting to full allowance",
			slog.String("error", err.Error()),
		)
		if resetErr := t.reset(); resetErr != nil {
			return ScanQuota{}, false
		}
		return ScanQuota{Remaining: t.allowance, Used: 0, LastReset: t.now()}, true
	}
	return quota, true
}

func (t *Tracker) reset() error {
	return t.persist(ScanQuota{
		Remaining: t.allowance,
		Used:      0,
		LastReset: t.now(),
	})
}

func (t *Tracker) persist(quota ScanQuota) error {
	data, err := json.Marshal(quota)
	if err != nil {
		return err
	}
	if err := t.kv.Set(scansKey, string(data)); err != nil {
		return err
	}
	if t.onChange != nil {
		t.onChange(quota)
	}
	return nil
}
