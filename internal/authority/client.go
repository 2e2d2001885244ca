// Package authority is the HTTP client for the remote license authority (the
// product website's API). Every call carries a bounded timeout and passes
// through a client-side rate limiter; unreachability is reported as a
// transient error so callers degrade to the offline grace period instead of
// failing.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mmcore/internal/config"
	apperrors "mmcore/internal/errors"
)

// VerifyRequest is the payload sent to the authority for license verification
type VerifyRequest struct {
	UserEmail  string `json:"userEmail"`
	DeviceID   string `json:"deviceId"`
	AppVersion string `json:"appVersion"`
	LicenseKey string `json:"licenseKey,omitempty"`
}

// VerifyResponse is the authority's verification verdict
type VerifyResponse struct {
	Valid    bool            `json:"valid"`
	Plan     string          `json:"plan,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
	User     *UserInfo       `json:"user,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// UserInfo carries account details returned on successful verification
type UserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Plan  string `json:"plan,omitempty"`
}

// SubscriptionData mirrors the authority's subscription sync payload
type SubscriptionData struct {
	PlanID             string     `json:"planId"`
	Status             string     `json:"status"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	TrialEnd           *time.Time `json:"trialEnd,omitempty"`
}

// SessionData describes one app session for usage tracking
type SessionData struct {
	AppVersion             string `json:"appVersion"`
	SessionDurationMinutes int    `json:"sessionDurationMinutes"`
}

// PerformanceData describes optimization work done during a session
type PerformanceData struct {
	ScansPerformed   int      `json:"scansPerformed"`
	MemoryFreedMB    int      `json:"memoryFreedMB"`
	JunkFilesRemoved int      `json:"junkFilesRemoved"`
	AppsOptimized    int      `json:"appsOptimized"`
	FeaturesUsed     []string `json:"featuresUsed"`
	DailyReset       bool     `json:"dailyReset,omitempty"`
}

// Client talks to the remote license authority.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	appVersion string
}

// NewClient creates an authority client from config
func NewClient(cfg config.AuthorityConfig, appVersion string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		logger:     logger,
		appVersion: appVersion,
	}
}

// VerifyLicense asks the authority whether the email holds a valid license
// for this device.
func (c *Client) VerifyLicense(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	if req.AppVersion == "" {
		req.AppVersion = c.appVersion
	}

	var resp VerifyResponse
	if err := c.post(ctx, "/verify-license", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncSubscription pushes the local plan state to the authority
func (c *Client) SyncSubscription(ctx context.Context, email, deviceID string, sub SubscriptionData) error {
	payload := struct {
		UserEmail        string           `json:"userEmail"`
		DeviceID         string           `json:"deviceId"`
		SubscriptionData SubscriptionData `json:"subscriptionData"`
	}{email, deviceID, sub}

	return c.post(ctx, "/sync-subscription", payload, nil)
}

// MigrateUserData re-keys historical usage from the anonymous identity to
// the real account email.
func (c *Client) MigrateUserData(ctx context.Context, oldEmail, newEmail, deviceID string) error {
	payload := struct {
		OldEmail string `json:"oldEmail"`
		NewEmail string `json:"newEmail"`
		DeviceID string `json:"deviceId"`
	}{oldEmail, newEmail, deviceID}

	return c.post(ctx, "/migrate-user", payload, nil)
}

// TrackUsage reports session and performance data
func (c *Client) TrackUsage(ctx context.Context, email, deviceID string, session SessionData, perf PerformanceData) error {
	payload := struct {
		UserEmail       string          `json:"userEmail"`
		DeviceID        string          `json:"deviceId"`
		SessionData     SessionData     `json:"sessionData"`
		PerformanceData PerformanceData `json:"performanceData"`
	}{email, deviceID, session, perf}

	return c.post(ctx, "/track-usage", payload, nil)
}

// TrackDownload reports a first-launch installation
func (c *Client) TrackDownload(ctx context.Context, email, deviceID, platform string) error {
	payload := struct {
		UserEmail  string `json:"userEmail"`
		DeviceID   string `json:"deviceId"`
		AppVersion string `json:"appVersion"`
		Platform   string `json:"platform"`
	}{email, deviceID, c.appVersion, platform}

	return c.post(ctx, "/track-download", payload, nil)
}

// post sends a JSON request and decodes the response into out when non-nil.
// Transport failures and 5xx responses come back as transient errors.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	op := "authority" + path

	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.E(apperrors.KindTransientNetwork, op, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("authority request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return apperrors.E(apperrors.KindTransientNetwork, op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("authority request completed",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 500 {
		return apperrors.E(apperrors.KindTransientNetwork, op,
			fmt.Errorf("authority returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: authority rejected request: status %d: %s", op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
