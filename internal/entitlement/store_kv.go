package entitlement

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"mmcore/internal/device"
	"mmcore/internal/store"
)

const licenseKey = "memory_monster_license"

// Migrator re-keys historical usage data when an anonymous identity becomes a
// real licensed email. Best-effort: failures are logged by the implementation
// and never block the license update.
type Migrator interface {
	Migrate(ctx context.Context, oldEmail, newEmail string)
}

// SubscriptionSyncer pushes the new plan to the remote authority after a
// license change. Best-effort as well.
type SubscriptionSyncer interface {
	SyncSubscription(ctx context.Context, record LicenseRecord, email string)
}

// Store is the single source of truth for the LicenseRecord and feature
// resolution. All reads are synchronous against the key/value store; all
// status transitions go through Update, Restrict, or the simulations.
type Store struct {
	kv       store.KeyValueStore
	identity *device.Identity
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	migrator Migrator
	syncer   SubscriptionSyncer
	onChange func(LicenseRecord)
}

// NewStore creates the entitlement store. Migrator, syncer, and metrics are
// optional; a nil hook is simply skipped.
func NewStore(kv store.KeyValueStore, identity *device.Identity, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:       kv,
		identity: identity,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreOption configures optional store collaborators
type StoreOption func(*Store)

// WithMigrator wires the anonymous-data migrator
func WithMigrator(m Migrator) StoreOption {
	return func(s *Store) { s.migrator = m }
}

// WithSyncer wires the subscription syncer
func WithSyncer(sync SubscriptionSyncer) StoreOption {
	return func(s *Store) { s.syncer = sync }
}

// WithMetrics wires the otel metrics
func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithChangeListener registers a callback invoked after every persisted
// record change. Used to push state to the renderer.
func WithChangeListener(fn func(LicenseRecord)) StoreOption {
	return func(s *Store) { s.onChange = fn }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Record reads the persisted license record. Missing or corrupt data yields
// the free-tier default; corruption is logged, never fatal.
func (s *Store) Record() LicenseRecord {
	raw, ok := s.kv.Get(licenseKey)
	if !ok {
		return LicenseRecord{Status: StatusFree}
	}

	var record LicenseRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.logger.Warn("license record corrupt, defaulting to free",
			slog.String("error", err.Error()),
		)
		return LicenseRecord{Status: StatusFree}
	}
	if !record.Status.Valid() {
		s.logger.Warn("license record carries unknown status, defaulting to free",
			slog.String("status", string(record.Status)),
		)
		record.Status = StatusFree
	}
	return record
}

// Status returns the current license status
func (s *Store) Status() Status {
	return s.Record().Status
}

// CanAccess resolves feature access against the current status. Features in
// the free set are always allowed; pro-set features require a paid status;
// anything else is denied (closed world).
func (s *Store) CanAccess(feature FeatureID) bool {
	if _, ok := freeFeatures[feature]; ok {
		return true
	}
	if _, ok := proFeatures[feature]; ok {
		return s.Status().IsPaid()
	}
	return false
}

// CurrentEmail resolves the effective user email: the licensed email when
// present, else the synthesized anonymous address for this device.
func (s *Store) CurrentEmail() string {
	if record := s.Record(); record.UserEmail != "" {
		return record.UserEmail
	}
	return s.identity.AnonymousEmail()
}

// Update merges the patch into the persisted record. When the effective email
// moves from the anonymous pattern to a real address the migrator fires
// exactly once for that transition, and every update triggers a subscription
// sync. Both side effects are best-effort.
func (s *Store) Update(ctx context.Context, patch RecordPatch) error {
	oldEmail := s.CurrentEmail()

	record := s.Record()
	record.apply(patch)

	if err := s.persist(record); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordStatusChange(ctx, record.Status)
	}

	if device.IsAnonymousEmail(oldEmail) && record.UserEmail != "" && !device.IsAnonymousEmail(record.UserEmail) {
		if s.migrator != nil {
			s.migrator.Migrate(ctx, oldEmail, record.UserEmail)
		}
	}

	if s.syncer != nil {
		s.syncer.SyncSubscription(ctx, record, s.CurrentEmail())
	}

	s.notify(record)
	return nil
}

// Restrict forces the restricted status after a failed integrity check. This
// is the hard fail-closed override: it bypasses merge semantics but keeps the
// rest of the record so a later successful verification can recover it.
func (s *Store) Restrict(ctx context.Context) error {
	record := s.Record()
	if record.Status == StatusRestricted {
		return nil
	}
	record.Status = StatusRestricted
	if err := s.persist(record); err != nil {
		return err
	}

	s.logger.Warn("entitlement restricted by integrity check",
		slog.String("previous_email", record.UserEmail),
	)
	if s.metrics != nil {
		s.metrics.RecordRestriction(ctx)
	}

	s.notify(record)
	return nil
}

// Reset removes the license record entirely, returning the installation to
// the free tier, and syncs the free status to the authority.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.kv.Remove(licenseKey); err != nil {
		return err
	}

	record := LicenseRecord{Status: StatusFree}
	if s.syncer != nil {
		s.syncer.SyncSubscription(ctx, record, s.CurrentEmail())
	}

	s.notify(record)
	return nil
}

func (s *Store) persist(record LicenseRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.kv.Set(licenseKey, string(data))
}

func (s *Store) notify(record LicenseRecord) {
	if s.onChange != nil {
		s.onChange(record)
	}
}
