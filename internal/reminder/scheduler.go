// Package reminder nags the user about pending updates on an escalating
// cadence. It is a state machine over the persisted State: an update is
// detected by a silent check, reminders follow a strictly increasing backoff,
// dismissals suppress them for a chosen window, and enabling auto-update or
// installing the update resolves the cycle entirely. A separate weekly
// re-engagement pass restarts the cycle for users who have gone quiet.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mmcore/internal/entitlement"
	"mmcore/internal/store"
	"mmcore/internal/updater"
)

// UpdateChecker is the slice of the updater the scheduler needs.
type UpdateChecker interface {
	CheckForUpdates(ctx context.Context) updater.CheckResult
	AutoUpdateEnabled() bool
	CurrentVersion() string
}

// Notifier shows a user-facing notification. Fire-and-forget: failures are
// the implementation's problem, never the scheduler's.
type Notifier interface {
	Show(title, body string)
}

// Scheduler drives the update reminder cycle.
type Scheduler struct {
	mu       sync.Mutex
	kv       store.KeyValueStore
	checker  UpdateChecker
	notifier Notifier
	logger   *slog.Logger
	metrics  *entitlement.Metrics
	reengage time.Duration
	now      func() time.Time
	onChange func(State)
}

// Option configures optional scheduler collaborators
type Option func(*Scheduler)

// WithMetrics wires the otel metrics
func WithMetrics(m *entitlement.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithChangeListener registers a callback invoked after every persisted
// state change.
func WithChangeListener(fn func(State)) Option {
	return func(s *Scheduler) { s.onChange = fn }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates the reminder scheduler. reengage is the inactivity
// span after which a stalled cycle restarts, normally seven days.
func NewScheduler(kv store.KeyValueStore, checker UpdateChecker, notifier Notifier, reengage time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		kv:       kv,
		checker:  checker,
		notifier: notifier,
		logger:   logger,
		reengage: reengage,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SilentCheck asks the updater for the latest version without any user
// interaction. A version newer than both the running build and the last seen
// one starts a fresh detection, clearing any prior dismissal. A successful
// check that reports nothing pending resolves any stale cycle, so an update
// installed outside the daemon stops generating reminders.
func (s *Scheduler) SilentCheck(ctx context.Context) {
	result := s.checker.CheckForUpdates(ctx)
	if !result.Success {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	checkedAt := s.now()
	state.LastUpdateCheck = &checkedAt
	state.IsFirstRun = false

	if result.UpdateInfo == nil {
		if state.UpdateAvailable {
			s.persist(state)
			s.resolveLocked("no update pending")
			return
		}
		s.persist(state)
		return
	}

	latest := result.UpdateInfo.LatestVersion
	if latest == s.checker.CurrentVersion() || latest == state.LatestVersion {
		s.persist(state)
		return
	}

	s.logger.Info("new version detected",
		slog.String("current", s.checker.CurrentVersion()),
		slog.String("latest", latest),
	)

	detectedAt := s.now()
	state.UpdateAvailable = true
	state.LatestVersion = latest
	state.UpdateDetectedAt = &detectedAt
	state.ReminderCount = 0
	state.LastReminderAt = nil
	state.DismissedUntil = nil
	state.UserDismissedUpdate = false
	s.persist(state)

	s.evaluateLocked(ctx, &state)
}

// EvaluateReminder shows the next reminder when it is due. Safe to call from
// a timer at any frequency: suppression by dismissal, the escalating backoff,
// and auto-update resolution are all re-checked on every call.
func (s *Scheduler) EvaluateReminder(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	s.evaluateLocked(ctx, &state)
}

// evaluateLocked runs the check-then-act reminder decision. Caller holds mu.
func (s *Scheduler) evaluateLocked(ctx context.Context, state *State) {
	if !state.UpdateAvailable {
		return
	}

	if s.checker.AutoUpdateEnabled() {
		s.resolveLocked("auto-update enabled")
		return
	}

	now := s.now()
	if state.DismissedUntil != nil && now.Before(*state.DismissedUntil) {
		return
	}

	reference := state.UpdateDetectedAt
	if state.LastReminderAt != nil {
		reference = state.LastReminderAt
	}
	if reference != nil && now.Sub(*reference) < backoffFor(state.ReminderCount) {
		return
	}

	s.showLocked(ctx, state, now, false)
}

func (s *Scheduler) showLocked(ctx context.Context, state *State, now time.Time, reengagement bool) {
	state.ReminderCount++
	state.LastReminderAt = &now
	state.DismissedUntil = nil
	s.persist(*state)

	s.logger.Info("showing update reminder",
		slog.String("version", state.LatestVersion),
		slog.Int("reminder_count", state.ReminderCount),
	)

	if s.notifier != nil {
		s.notifier.Show(
			"Update Available",
			fmt.Sprintf("Memory Monster %s is ready to install.", state.LatestVersion),
		)
	}
	if s.metrics != nil {
		s.metrics.RecordReminderShown(ctx, state.ReminderCount, reengagement)
	}
}

// Dismiss suppresses reminders for the chosen window.
func (s *Scheduler) Dismiss(ctx context.Context, duration DismissDuration) error {
	window, ok := duration.Window()
	if !ok {
		return fmt.Errorf("unknown dismiss duration: %s", duration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	until := s.now().Add(window)
	state.DismissedUntil = &until
	state.UserDismissedUpdate = true
	s.persist(state)

	s.logger.Info("update reminder dismissed",
		slog.String("duration", string(duration)),
		slog.Time("until", until),
	)
	if s.metrics != nil {
		s.metrics.RecordReminderDismissed(ctx, string(duration))
	}
	return nil
}

// OnAutoUpdateEnabled resolves the reminder cycle: the user no longer needs
// to be nagged once updates install themselves.
func (s *Scheduler) OnAutoUpdateEnabled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveLocked("auto-update enabled")
}

// OnUpdateInstalled resolves the reminder cycle after a successful install.
func (s *Scheduler) OnUpdateInstalled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveLocked("update installed")
}

// resolveLocked clears all reminder state back to idle. Caller holds mu.
// One-shot prompt flags survive resolution; they are per-install, not
// per-update.
func (s *Scheduler) resolveLocked(reason string) {
	state := s.load()
	if !state.UpdateAvailable && state.ReminderCount == 0 && state.DismissedUntil == nil {
		return
	}

	s.logger.Info("update reminder cycle resolved",
		slog.String("reason", reason),
	)

	state.UpdateAvailable = false
	state.LatestVersion = ""
	state.UpdateDetectedAt = nil
	state.ReminderCount = 0
	state.LastReminderAt = nil
	state.DismissedUntil = nil
	state.UserDismissedUpdate = false
	s.persist(state)
}

// WeeklyReengagement restarts a stalled reminder cycle. When auto-update is
// still disabled, an update is still pending, and no reminder has been shown
// for the re-engagement span, the count resets and a fresh reminder shows
// immediately, bypassing the normal backoff.
func (s *Scheduler) WeeklyReengagement(ctx context.Context) {
	if s.checker.AutoUpdateEnabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	if !state.UpdateAvailable || state.LastReminderAt == nil {
		return
	}

	now := s.now()
	if now.Sub(*state.LastReminderAt) < s.reengage {
		return
	}

	s.logger.Info("re-engaging after stalled reminder cycle",
		slog.String("version", state.LatestVersion),
		slog.Duration("since_last_reminder", now.Sub(*state.LastReminderAt)),
	)

	state.ReminderCount = 0
	state.DismissedUntil = nil
	s.showLocked(ctx, &state, now, true)
}

// ForceUpdateCheck runs a silent check and evaluates the reminder state
// immediately. Wired to an explicit user action.
func (s *Scheduler) ForceUpdateCheck(ctx context.Context) State {
	s.SilentCheck(ctx)
	s.EvaluateReminder(ctx)
	return s.Snapshot()
}

// ShowOnboardingPrompt shows the first-run update education prompt exactly
// once per install.
func (s *Scheduler) ShowOnboardingPrompt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	if state.OnboardingPromptShown {
		return false
	}
	state.OnboardingPromptShown = true
	s.persist(state)

	if s.notifier != nil {
		s.notifier.Show(
			"Stay Up To Date",
			"Enable auto-update to always run the latest Memory Monster.",
		)
	}
	return true
}

// ShowUpgradePrompt shows the post-upgrade auto-update prompt exactly once
// per install.
func (s *Scheduler) ShowUpgradePrompt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	if state.UpgradePromptShown {
		return false
	}
	state.UpgradePromptShown = true
	s.persist(state)

	if s.notifier != nil {
		s.notifier.Show(
			"Thanks For Updating",
			"Turn on auto-update and never think about updates again.",
		)
	}
	return true
}

// Snapshot returns the current persisted state
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the persisted state; absence or corruption yields the idle
// first-run state.
func (s *Scheduler) load() State {
	raw, ok := s.kv.Get(stateKey)
	if !ok {
		return State{IsFirstRun: true}
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn("reminder state corrupt, resetting to idle",
			slog.String("error", err.Error()),
		)
		return State{IsFirstRun: true}
	}
	return state
}

func (s *Scheduler) persist(state State) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.kv.Set(stateKey, string(data)); err != nil {
		s.logger.Warn("failed to persist reminder state",
			slog.String("error", err.Error()),
		)
		return
	}
	if s.onChange != nil {
		s.onChange(state)
	}
}
