package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmcore/internal/authority"
	"mmcore/internal/device"
	"mmcore/internal/entitlement"
	"mmcore/internal/quota"
	"mmcore/internal/security"
	"mmcore/internal/store"
	"mmcore/internal/verify"
)

type stubAuthority struct {
	resp *authority.VerifyResponse
}

func (s *stubAuthority) VerifyLicense(ctx context.Context, req authority.VerifyRequest) (*authority.VerifyResponse, error) {
	return s.resp, nil
}

type stubIntegrity struct{}

func (stubIntegrity) ValidateDeviceIntegrity() security.IntegrityResult {
	return security.IntegrityResult{Valid: true}
}
func (stubIntegrity) IsDeviceAuthorized() bool { return true }
func (stubIntegrity) SecureDeviceID() string   { return "mmsec_test" }
func (stubIntegrity) MarkDeviceAuthorized()    {}

func newTestService(t *testing.T) (EntitlementService, *entitlement.Store, *quota.Tracker) {
	t.Helper()
	kv := store.NewMemoryStore()
	integrity := stubIntegrity{}
	identity := device.NewIdentity(kv, integrity, nil)
	entitlements := entitlement.NewStore(kv, identity, nil)
	tracker := quota.NewTracker(kv, entitlements, 3, 24*time.Hour, nil)
	verifier := verify.NewVerifier(
		&stubAuthority{resp: &authority.VerifyResponse{Valid: true, Plan: "pro"}},
		entitlements, identity, integrity, 6*time.Hour, 0.5, "1.0.0", nil,
	)

	require.NoError(t, tracker.Initialize(context.Background()))
	return NewEntitlementService(entitlements, tracker, verifier, identity, nil), entitlements, tracker
}

func TestGetStatusFreeTier(t *testing.T) {
	svc, _, _ := newTestService(t)

	status := svc.GetStatus(context.Background())
	assert.Equal(t, "free", status.LicenseStatus)
	assert.Equal(t, "Free", status.Tier)
	assert.Equal(t, 3, status.ScansRemaining)
	assert.False(t, status.Unlimited)
	assert.True(t, status.IsAnonymous)
	assert.Equal(t, "mmsec_test", status.DeviceID)
	require.NotNil(t, status.ResetCountdown)
}

func TestPerformScanConsumesQuota(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		resp, err := svc.PerformScan(ctx)
		require.NoError(t, err)
		assert.True(t, resp.Allowed)
		assert.Equal(t, want, resp.ScansRemaining)
	}

	// Exhausted: denied with upsell copy, not an error.
	resp, err := svc.PerformScan(ctx)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.Equal(t, 0, resp.ScansRemaining)
	assert.NotEmpty(t, resp.UpgradePrompt)
}

func TestPerformScanUnlimitedAfterUpgrade(t *testing.T) {
	svc, entitlements, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, entitlements.SimulateProUpgrade(ctx))

	resp, err := svc.PerformScan(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.True(t, resp.Unlimited)
	assert.Equal(t, quota.UnlimitedSentinel, resp.ScansRemaining)
}

func TestCheckFeatureCarriesUpgradePrompt(t *testing.T) {
	svc, _, _ := newTestService(t)

	free := svc.CheckFeature(string(entitlement.FeatureBasicScan))
	assert.True(t, free.Allowed)
	assert.Empty(t, free.UpgradePrompt)

	gated := svc.CheckFeature(string(entitlement.FeatureUnlimitedScans))
	assert.False(t, gated.Allowed)
	assert.NotEmpty(t, gated.UpgradePrompt)
}

func TestVerifyThroughService(t *testing.T) {
	svc, entitlements, _ := newTestService(t)

	result, err := svc.Verify(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, entitlement.StatusPro, entitlements.Status())
}

func TestSimulateFreeResetsQuota(t *testing.T) {
	svc, _, tracker := newTestService(t)
	ctx := context.Background()

	_, err := svc.PerformScan(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Simulate(ctx, "free"))
	assert.Equal(t, 3, tracker.RemainingOrUnlimited(ctx))

	assert.Error(t, svc.Simulate(ctx, "platinum"))
}

func TestFirstLaunchTrackedOnce(t *testing.T) {
	kv := store.NewMemoryStore()
	integrity := stubIntegrity{}
	identity := device.NewIdentity(kv, integrity, nil)

	// The flag short-circuits before any network call, so a nil client is
	// never dereferenced once it is set.
	require.NoError(t, kv.Set("memory_monster_download_tracked", time.Now().Format(time.RFC3339)))
	usage := NewUsageService(nil, identity, kv, "1.0.0", nil)
	usage.TrackFirstLaunch(context.Background())
}
