package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmcore/internal/authority"
	"mmcore/internal/device"
	"mmcore/internal/entitlement"
	"mmcore/internal/quota"
	"mmcore/internal/reminder"
	"mmcore/internal/security"
	"mmcore/internal/services"
	"mmcore/internal/store"
	"mmcore/internal/updater"
	"mmcore/internal/verify"
	ws "mmcore/internal/websocket"
)

type stubAuthority struct{}

func (stubAuthority) VerifyLicense(ctx context.Context, req authority.VerifyRequest) (*authority.VerifyResponse, error) {
	return &authority.VerifyResponse{Valid: true, Plan: "pro", User: &authority.UserInfo{Email: req.UserEmail}}, nil
}

type stubIntegrity struct{}

func (stubIntegrity) ValidateDeviceIntegrity() security.IntegrityResult {
	return security.IntegrityResult{Valid: true}
}
func (stubIntegrity) IsDeviceAuthorized() bool { return true }
func (stubIntegrity) SecureDeviceID() string   { return "mmsec_test" }
func (stubIntegrity) MarkDeviceAuthorized()    {}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	kv := store.NewMemoryStore()
	integrity := stubIntegrity{}
	identity := device.NewIdentity(kv, integrity, nil)
	entitlements := entitlement.NewStore(kv, identity, nil)
	tracker := quota.NewTracker(kv, entitlements, 3, 24*time.Hour, nil)
	require.NoError(t, tracker.Initialize(context.Background()))

	verifier := verify.NewVerifier(stubAuthority{}, entitlements, identity, integrity, 6*time.Hour, 0.5, "1.0.0", nil)
	service := services.NewEntitlementService(entitlements, tracker, verifier, identity, nil)

	upd, err := updater.NewUpdater("1.0.0", "https://github.com/memorymonster/memory-monster-app", time.Second, nil)
	require.NoError(t, err)
	scheduler := reminder.NewScheduler(kv, upd, nil, 7*24*time.Hour, nil)

	hub := ws.NewHub(nil)

	router := NewRouter(RouterDeps{
		License: NewLicenseHandler(service, nil),
		Updates: NewUpdatesHandler(scheduler, upd, nil),
		Health:  NewHealthHandler("1.0.0", hub),
		Hub:     hub,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.0.0", health.Version)
}

func TestStatusEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/license/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status services.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "free", status.LicenseStatus)
	assert.Equal(t, 3, status.ScansRemaining)
}

func TestScanEndpointConsumesQuota(t *testing.T) {
	server := newTestServer(t)

	for want := 2; want >= 0; want-- {
		resp, err := http.Post(server.URL+"/api/license/scan", "application/json", nil)
		require.NoError(t, err)

		var scan services.ScanResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
		resp.Body.Close()

		assert.True(t, scan.Allowed)
		assert.Equal(t, want, scan.ScansRemaining)
	}

	resp, err := http.Post(server.URL+"/api/license/scan", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var scan services.ScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
	assert.False(t, scan.Allowed)
	assert.NotEmpty(t, scan.UpgradePrompt)
}

func TestVerifyEndpointValidation(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/license/verify", "application/json",
		strings.NewReader(`{"email":"not-an-email"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyEndpointFlipsAccess(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/license/verify", "application/json",
		strings.NewReader(`{"email":"user@x.com"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	featureResp, err := http.Get(server.URL + "/api/license/features/unlimited_scans")
	require.NoError(t, err)
	defer featureResp.Body.Close()

	var access services.FeatureAccessResponse
	require.NoError(t, json.NewDecoder(featureResp.Body).Decode(&access))
	assert.True(t, access.Allowed)
}

func TestSimulateEndpointRejectsUnknownKind(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/license/simulate", "application/json",
		strings.NewReader(`{"kind":"platinum"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdatesStateAndDismiss(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/updates/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	dismissResp, err := http.Post(server.URL+"/api/updates/dismiss", "application/json",
		strings.NewReader(`{"duration":"day"}`))
	require.NoError(t, err)
	defer dismissResp.Body.Close()
	require.Equal(t, http.StatusOK, dismissResp.StatusCode)

	var state reminder.State
	require.NoError(t, json.NewDecoder(dismissResp.Body).Decode(&state))
	assert.True(t, state.UserDismissedUpdate)
	require.NotNil(t, state.DismissedUntil)

	badResp, err := http.Post(server.URL+"/api/updates/dismiss", "application/json",
		strings.NewReader(`{"duration":"eon"}`))
	require.NoError(t, err)
	defer badResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
}

func TestAutoUpdateToggle(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/updates/auto-update", "application/json",
		strings.NewReader(`{"enabled":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stateResp, err := http.Get(server.URL + "/api/updates/state")
	require.NoError(t, err)
	defer stateResp.Body.Close()

	var state struct {
		AutoUpdateEnabled bool `json:"auto_update_enabled"`
	}
	require.NoError(t, json.NewDecoder(stateResp.Body).Decode(&state))
	assert.True(t, state.AutoUpdateEnabled)
}
