package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmcore/internal/authority"
	"mmcore/internal/device"
	"mmcore/internal/entitlement"
	apperrors "mmcore/internal/errors"
	"mmcore/internal/security"
	"mmcore/internal/store"
)

type fakeAuthority struct {
	resp *authority.VerifyResponse
	err  error
	reqs []authority.VerifyRequest
}

func (f *fakeAuthority) VerifyLicense(ctx context.Context, req authority.VerifyRequest) (*authority.VerifyResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeIntegrity struct {
	result     security.IntegrityResult
	authorized bool
}

func (f *fakeIntegrity) ValidateDeviceIntegrity() security.IntegrityResult { return f.result }
func (f *fakeIntegrity) IsDeviceAuthorized() bool                          { return f.authorized }
func (f *fakeIntegrity) SecureDeviceID() string                            { return "mmsec_test" }
func (f *fakeIntegrity) MarkDeviceAuthorized()                             { f.authorized = true }

func newTestVerifier(t *testing.T, auth *fakeAuthority, integrity *fakeIntegrity) (*Verifier, *entitlement.Store) {
	t.Helper()
	kv := store.NewMemoryStore()
	identity := device.NewIdentity(kv, integrity, nil)
	entitlements := entitlement.NewStore(kv, identity, nil)

	v := NewVerifier(auth, entitlements, identity, integrity, 6*time.Hour, 0.5, "1.0.0", nil)
	return v, entitlements
}

func TestVerifySuccessFlipsEntitlement(t *testing.T) {
	auth := &fakeAuthority{resp: &authority.VerifyResponse{
		Valid: true,
		Plan:  "pro",
		User:  &authority.UserInfo{Email: "user@x.com", Name: "User"},
	}}
	integrity := &fakeIntegrity{result: security.IntegrityResult{Valid: true}}
	v, entitlements := newTestVerifier(t, auth, integrity)
	ctx := context.Background()

	require.False(t, entitlements.CanAccess(entitlement.FeatureUnlimitedScans))

	result, err := v.Verify(ctx, "user@x.com")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "pro", result.Plan)

	// Access flips without any restart or cache invalidation.
	assert.True(t, entitlements.CanAccess(entitlement.FeatureUnlimitedScans))

	record := entitlements.Record()
	assert.Equal(t, entitlement.StatusPro, record.Status)
	assert.Equal(t, "user@x.com", record.UserEmail)
	require.NotNil(t, record.LastVerified)

	assert.True(t, integrity.authorized, "first success marks the device authorized")

	require.Len(t, auth.reqs, 1)
	assert.Equal(t, "mmsec_test", auth.reqs[0].DeviceID)
	assert.Equal(t, "1.0.0", auth.reqs[0].AppVersion)
}

func TestVerifyNetworkFailureUsesOffline(t *testing.T) {
	auth := &fakeAuthority{err: apperrors.E(apperrors.KindTransientNetwork, "authority/verify-license", errors.New("connection refused"))}
	integrity := &fakeIntegrity{result: security.IntegrityResult{Valid: true}}
	v, entitlements := newTestVerifier(t, auth, integrity)

	require.NoError(t, entitlements.SimulateProUpgrade(context.Background()))

	result, err := v.Verify(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.UseOffline)

	// Stored status untouched: offline grace keeps the pro entitlement.
	assert.Equal(t, entitlement.StatusPro, entitlements.Status())
}

func TestVerifyRejectionLeavesStatus(t *testing.T) {
	auth := &fakeAuthority{resp: &authority.VerifyResponse{Valid: false, Error: "no license"}}
	integrity := &fakeIntegrity{result: security.IntegrityResult{Valid: true}}
	v, entitlements := newTestVerifier(t, auth, integrity)

	result, err := v.Verify(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.False(t, result.UseOffline)
	assert.Equal(t, "no license", result.Error)
	assert.Equal(t, entitlement.StatusFree, entitlements.Status())
}

func TestVerifyUnknownPlanDefaultsToFree(t *testing.T) {
	auth := &fakeAuthority{resp: &authority.VerifyResponse{Valid: true, Plan: "platinum"}}
	integrity := &fakeIntegrity{result: security.IntegrityResult{Valid: true}}
	v, entitlements := newTestVerifier(t, auth, integrity)

	result, err := v.Verify(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, entitlement.StatusFree, entitlements.Status())
}

func TestShouldVerify(t *testing.T) {
	auth := &fakeAuthority{resp: &authority.VerifyResponse{Valid: true, Plan: "pro"}}
	integrity := &fakeIntegrity{result: security.IntegrityResult{Valid: true}}

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	kv := store.NewMemoryStore()
	identity := device.NewIdentity(kv, integrity, nil)
	entitlements := entitlement.NewStore(kv, identity, nil)
	v := NewVerifier(auth, entitlements, identity, integrity, 6*time.Hour, 0.5, "1.0.0", nil,
		WithClock(func() time.Time { return now }),
	)

	assert.True(t, v.ShouldVerify(), "never verified")

	_, err := v.Verify(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.False(t, v.ShouldVerify())

	now = now.Add(5 * time.Hour)
	assert.False(t, v.ShouldVerify(), "inside the grace period")

	now = now.Add(2 * time.Hour)
	assert.True(t, v.ShouldVerify(), "grace period exceeded")
}

func TestSecurityCheckRestrictsAboveThreshold(t *testing.T) {
	auth := &fakeAuthority{resp: &authority.VerifyResponse{Valid: true, Plan: "pro"}}
	integrity := &fakeIntegrity{result: security.IntegrityResult{
		Valid:        false,
		RiskScore:    0.8,
		FailedChecks: []string{"fingerprint_mismatch", "hardware_identity"},
	}}
	v, entitlements := newTestVerifier(t, auth, integrity)
	ctx := context.Background()

	require.NoError(t, entitlements.SimulateProUpgrade(ctx))
	require.True(t, entitlements.CanAccess(entitlement.FeatureAdvancedFeatures))

	result, err := v.PerformSecurityCheck(ctx)
	require.NoError(t, err)
	assert.True(t, result.Restricted)
	assert.InDelta(t, 0.8, result.RiskScore, 0.001)

	assert.Equal(t, entitlement.StatusRestricted, entitlements.Status())
	assert.False(t, entitlements.CanAccess(entitlement.FeatureAdvancedFeatures))
}

func TestSecurityCheckBelowThresholdAdvisoryOnly(t *testing.T) {
	auth := &fakeAuthority{}
	integrity := &fakeIntegrity{result: security.IntegrityResult{
		Valid:        false,
		RiskScore:    0.3,
		FailedChecks: []string{"hardware_identity"},
	}}
	v, entitlements := newTestVerifier(t, auth, integrity)
	ctx := context.Background()

	require.NoError(t, entitlements.SimulateProUpgrade(ctx))

	result, err := v.PerformSecurityCheck(ctx)
	require.NoError(t, err)
	assert.False(t, result.Restricted)
	assert.Equal(t, entitlement.StatusPro, entitlements.Status())
}
