package services

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"mmcore/internal/device"
	"mmcore/internal/entitlement"
	"mmcore/internal/quota"
	"mmcore/internal/verify"
)

// EntitlementService provides the renderer-facing view of license state,
// feature gating, and scan quota.
type EntitlementService interface {
	GetStatus(ctx context.Context) *StatusResponse
	CheckFeature(feature string) *FeatureAccessResponse
	PerformScan(ctx context.Context) (*ScanResponse, error)
	Verify(ctx context.Context, email string) (verify.Result, error)
	Simulate(ctx context.Context, kind string) error
}

// StatusResponse is the full license state snapshot pushed to the renderer
type StatusResponse struct {
	LicenseStatus     string                `json:"license_status"`
	Tier              string                `json:"tier"`
	PlanID            string                `json:"plan_id"`
	SubscriptionState string                `json:"subscription_state"`
	UserEmail         string                `json:"user_email"`
	UserName          string                `json:"user_name,omitempty"`
	IsAnonymous       bool                  `json:"is_anonymous"`
	DeviceID          string                `json:"device_id"`
	ScansRemaining    int                   `json:"scans_remaining"`
	Unlimited         bool                  `json:"unlimited"`
	ResetCountdown    *quota.ResetCountdown `json:"reset_countdown,omitempty"`
	LastVerified      *time.Time            `json:"last_verified,omitempty"`
	TrialEnd          *time.Time            `json:"trial_end,omitempty"`
	Timestamp         time.Time             `json:"timestamp"`
}

// FeatureAccessResponse is the verdict for a single feature check
type FeatureAccessResponse struct {
	Feature       string `json:"feature"`
	Allowed       bool   `json:"allowed"`
	UpgradePrompt string `json:"upgrade_prompt,omitempty"`
}

// ScanResponse is the outcome of a scan attempt
type ScanResponse struct {
	Allowed        bool                  `json:"allowed"`
	ScansRemaining int                   `json:"scans_remaining"`
	Unlimited      bool                  `json:"unlimited"`
	UpgradePrompt  string                `json:"upgrade_prompt,omitempty"`
	ResetCountdown *quota.ResetCountdown `json:"reset_countdown,omitempty"`
}

type entitlementService struct {
	entitlements *entitlement.Store
	quota        *quota.Tracker
	verifier     *verify.Verifier
	identity     *device.Identity
	logger       *slog.Logger
}

// NewEntitlementService creates the renderer-facing entitlement facade
func NewEntitlementService(
	entitlements *entitlement.Store,
	tracker *quota.Tracker,
	verifier *verify.Verifier,
	identity *device.Identity,
	logger *slog.Logger,
) EntitlementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &entitlementService{
		entitlements: entitlements,
		quota:        tracker,
		verifier:     verifier,
		identity:     identity,
		logger:       logger,
	}
}

// GetStatus assembles the license snapshot. The lazy quota rollover runs as
// part of reading the remaining count, so the snapshot is never stale.
func (s *entitlementService) GetStatus(ctx context.Context) *StatusResponse {
	record := s.entitlements.Record()
	email := s.entitlements.CurrentEmail()
	remaining := s.quota.RemainingOrUnlimited(ctx)

	return &StatusResponse{
		LicenseStatus:     string(record.Status),
		Tier:              record.Status.Tier(),
		PlanID:            record.Status.PlanID(),
		SubscriptionState: record.Status.SubscriptionState(),
		UserEmail:         email,
		UserName:          record.UserName,
		IsAnonymous:       device.IsAnonymousEmail(email),
		DeviceID:          s.identity.ID(),
		ScansRemaining:    remaining,
		Unlimited:         remaining == quota.UnlimitedSentinel,
		ResetCountdown:    s.quota.TimeUntilReset(),
		LastVerified:      record.LastVerified,
		TrialEnd:          record.TrialEnd,
		Timestamp:         time.Now(),
	}
}

// CheckFeature resolves access for one feature, carrying upsell copy when a
// gated feature is denied.
func (s *entitlementService) CheckFeature(feature string) *FeatureAccessResponse {
	id := entitlement.FeatureID(feature)
	allowed := s.entitlements.CanAccess(id)

	resp := &FeatureAccessResponse{
		Feature: feature,
		Allowed: allowed,
	}
	if !allowed {
		resp.UpgradePrompt = entitlement.UpgradePrompt(id)
	}
	return resp
}

// PerformScan consumes one scan from the daily allowance. An exhausted free
// tier is not an error, it is a denied response with upsell copy.
func (s *entitlementService) PerformScan(ctx context.Context) (*ScanResponse, error) {
	remaining := s.quota.RemainingOrUnlimited(ctx)

	if remaining == quota.UnlimitedSentinel {
		if err := s.quota.Decrement(ctx); err != nil {
			return nil, err
		}
		return &ScanResponse{
			Allowed:        true,
			ScansRemaining: quota.UnlimitedSentinel,
			Unlimited:      true,
		}, nil
	}

	if remaining <= 0 {
		return &ScanResponse{
			Allowed:        false,
			ScansRemaining: 0,
			UpgradePrompt:  entitlement.UpgradePrompt(entitlement.FeatureUnlimitedScans),
			ResetCountdown: s.quota.TimeUntilReset(),
		}, nil
	}

	if err := s.quota.Decrement(ctx); err != nil {
		return nil, err
	}
	return &ScanResponse{
		Allowed:        true,
		ScansRemaining: remaining - 1,
		ResetCountdown: s.quota.TimeUntilReset(),
	}, nil
}

// Verify runs an online verification for the given email.
func (s *entitlementService) Verify(ctx context.Context, email string) (verify.Result, error) {
	return s.verifier.Verify(ctx, email)
}

// Simulate forces a status transition for manual QA. The simulations run
// through the same update path as real verification so the persisted shape
// is identical.
func (s *entitlementService) Simulate(ctx context.Context, kind string) error {
	switch kind {
	case "pro":
		return s.entitlements.SimulateProUpgrade(ctx)
	case "trial":
		return s.entitlements.SimulateTrialStart(ctx)
	case "free":
		if err := s.entitlements.SimulateFreeReset(ctx); err != nil {
			return err
		}
		return s.quota.ResetToFull()
	default:
		return fmt.Errorf("unknown simulation kind: %s", kind)
	}
}
