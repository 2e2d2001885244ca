package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmcore/internal/device"
	"mmcore/internal/store"
)

type fakeMigrator struct {
	calls [][2]string
}

func (f *fakeMigrator) Migrate(ctx context.Context, oldEmail, newEmail string) {
	f.calls = append(f.calls, [2]string{oldEmail, newEmail})
}

type fakeSyncer struct {
	records []LicenseRecord
}

func (f *fakeSyncer) SyncSubscription(ctx context.Context, record LicenseRecord, email string) {
	f.records = append(f.records, record)
}

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, store.KeyValueStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	identity := device.NewIdentity(kv, nil, nil)
	return NewStore(kv, identity, nil, opts...), kv
}

func TestStoreDefaultsToFree(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, StatusFree, s.Status())
}

func TestStoreCorruptRecordDefaultsToFree(t *testing.T) {
	s, kv := newTestStore(t)
	require.NoError(t, kv.Set("memory_monster_license", "{broken"))
	assert.Equal(t, StatusFree, s.Status())
}

func TestStoreUnknownStatusDefaultsToFree(t *testing.T) {
	s, kv := newTestStore(t)
	require.NoError(t, kv.Set("memory_monster_license", `{"status":"platinum"}`))
	assert.Equal(t, StatusFree, s.Status())
}

func TestCanAccessMatrix(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		feature FeatureID
		want    bool
	}{
		{"free set always allowed on free", StatusFree, FeatureBasicScan, true},
		{"free set always allowed on restricted", StatusRestricted, FeatureDashboardAccess, true},
		{"pro feature denied on free", StatusFree, FeatureUnlimitedScans, false},
		{"pro feature allowed on pro", StatusPro, FeatureUnlimitedScans, true},
		{"pro feature allowed on trial", StatusTrial, FeatureAdvancedFeatures, true},
		{"pro feature allowed on monthly", StatusProMonthly, FeatureAutoOptimization, true},
		{"pro feature allowed on yearly", StatusProYearly, FeatureCustomRules, true},
		{"pro feature denied on restricted", StatusRestricted, FeatureAdvancedFeatures, false},
		{"unknown feature denied everywhere", StatusPro, FeatureID("time_travel"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			status := tt.status
			require.NoError(t, s.Update(context.Background(), RecordPatch{Status: &status}))
			assert.Equal(t, tt.want, s.CanAccess(tt.feature))
		})
	}
}

func TestUpdateMergesPartialPatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	status := StatusPro
	email := "user@example.com"
	require.NoError(t, s.Update(ctx, RecordPatch{Status: &status, UserEmail: &email}))

	name := "Ada"
	require.NoError(t, s.Update(ctx, RecordPatch{UserName: &name}))

	record := s.Record()
	assert.Equal(t, StatusPro, record.Status, "unpatched fields survive")
	assert.Equal(t, "user@example.com", record.UserEmail)
	assert.Equal(t, "Ada", record.UserName)
}

func TestMigrationFiresExactlyOnce(t *testing.T) {
	migrator := &fakeMigrator{}
	s, _ := newTestStore(t, WithMigrator(migrator))
	ctx := context.Background()

	anonBefore := s.CurrentEmail()
	assert.True(t, device.IsAnonymousEmail(anonBefore))

	status := StatusPro
	email := "real@example.com"
	require.NoError(t, s.Update(ctx, RecordPatch{Status: &status, UserEmail: &email}))

	require.Len(t, migrator.calls, 1)
	assert.Equal(t, anonBefore, migrator.calls[0][0])
	assert.Equal(t, "real@example.com", migrator.calls[0][1])

	// Subsequent updates with a real email must not re-trigger migration.
	name := "Ada"
	require.NoError(t, s.Update(ctx, RecordPatch{UserName: &name}))
	assert.Len(t, migrator.calls, 1)

	assert.Equal(t, "real@example.com", s.CurrentEmail())
}

func TestRestrictOverridesPaidLicense(t *testing.T) {
	syncer := &fakeSyncer{}
	s, _ := newTestStore(t, WithSyncer(syncer))
	ctx := context.Background()

	require.NoError(t, s.SimulateProUpgrade(ctx))
	require.True(t, s.CanAccess(FeatureAdvancedFeatures))

	require.NoError(t, s.Restrict(ctx))

	assert.Equal(t, StatusRestricted, s.Status())
	assert.False(t, s.CanAccess(FeatureAdvancedFeatures))
	assert.True(t, s.CanAccess(FeatureBasicScan), "free set survives restriction")

	record := s.Record()
	assert.Equal(t, "test@example.com", record.UserEmail, "restriction keeps the rest of the record")

	// Restricting an already-restricted record is a no-op.
	require.NoError(t, s.Restrict(ctx))
	assert.Equal(t, StatusRestricted, s.Status())
}

func TestSimulationsMatchRealShape(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SimulateTrialStart(ctx))
	record := s.Record()
	assert.Equal(t, StatusTrial, record.Status)
	require.NotNil(t, record.TrialEnd)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *record.TrialEnd, time.Minute)

	require.NoError(t, s.SimulateFreeReset(ctx))
	assert.Equal(t, StatusFree, s.Status())
	assert.Empty(t, s.Record().UserEmail)
}

func TestResetSyncsFreePlan(t *testing.T) {
	syncer := &fakeSyncer{}
	s, _ := newTestStore(t, WithSyncer(syncer))
	ctx := context.Background()

	require.NoError(t, s.SimulateProUpgrade(ctx))
	require.NoError(t, s.Reset(ctx))

	require.NotEmpty(t, syncer.records)
	last := syncer.records[len(syncer.records)-1]
	assert.Equal(t, StatusFree, last.Status)
	assert.Equal(t, "free", last.Status.PlanID())
}

func TestStatusPlanMapping(t *testing.T) {
	assert.Equal(t, "pro_monthly", StatusPro.PlanID())
	assert.Equal(t, "pro_monthly", StatusProMonthly.PlanID())
	assert.Equal(t, "pro_yearly", StatusProYearly.PlanID())
	assert.Equal(t, "trial", StatusTrial.PlanID())
	assert.Equal(t, "free", StatusFree.PlanID())
	assert.Equal(t, "free", StatusRestricted.PlanID())

	assert.Equal(t, "trialing", StatusTrial.SubscriptionState())
	assert.Equal(t, "active", StatusPro.SubscriptionState())
}
