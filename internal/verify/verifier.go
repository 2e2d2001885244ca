// Package verify reconciles local entitlement with the remote license
// authority while tolerating disconnection. A device may run on previously
// verified entitlement data for the offline grace period; a failed integrity
// check above the risk threshold forces the restricted status regardless of
// any stored license.
package verify

import (
	"context"
	"log/slog"
	"time"

	"mmcore/internal/authority"
	"mmcore/internal/device"
	"mmcore/internal/entitlement"
	apperrors "mmcore/internal/errors"
	"mmcore/internal/security"
)

// Result describes the outcome of an online verification. UseOffline is set
// when the authority was unreachable and the caller should keep operating on
// the stored entitlement.
type Result struct {
	Valid      bool   `json:"valid"`
	Plan       string `json:"plan,omitempty"`
	UserEmail  string `json:"user_email,omitempty"`
	UseOffline bool   `json:"use_offline,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SecurityCheckResult describes an integrity evaluation
type SecurityCheckResult struct {
	Valid      bool     `json:"valid"`
	Restricted bool     `json:"restricted"`
	RiskScore  float64  `json:"risk_score"`
	Reasons    []string `json:"reasons,omitempty"`
}

// LicenseAuthority is the slice of the authority client the verifier needs.
type LicenseAuthority interface {
	VerifyLicense(ctx context.Context, req authority.VerifyRequest) (*authority.VerifyResponse, error)
}

// Verifier performs online license verification and integrity enforcement.
type Verifier struct {
	auth          LicenseAuthority
	entitlements  *entitlement.Store
	identity      *device.Identity
	integrity     security.Provider
	logger        *slog.Logger
	metrics       *entitlement.Metrics
	gracePeriod   time.Duration
	riskThreshold float64
	appVersion    string
	now           func() time.Time
}

// Option configures optional verifier collaborators
type Option func(*Verifier)

// WithMetrics wires the otel metrics
func WithMetrics(m *entitlement.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates the online verifier
func NewVerifier(
	auth LicenseAuthority,
	entitlements *entitlement.Store,
	identity *device.Identity,
	integrity security.Provider,
	gracePeriod time.Duration,
	riskThreshold float64,
	appVersion string,
	logger *slog.Logger,
	opts ...Option,
) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{
		auth:          auth,
		entitlements:  entitlements,
		identity:      identity,
		integrity:     integrity,
		logger:        logger,
		gracePeriod:   gracePeriod,
		riskThreshold: riskThreshold,
		appVersion:    appVersion,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reconciles the local record with the authority's verdict for the
// given email. A transient network failure returns a use-offline result and
// leaves the stored status untouched.
func (v *Verifier) Verify(ctx context.Context, email string) (Result, error) {
	start := v.now()
	v.logger.Info("verifying license online",
		slog.String("email", email),
	)

	resp, err := v.auth.VerifyLicense(ctx, authority.VerifyRequest{
		UserEmail:  email,
		DeviceID:   v.identity.ID(),
		AppVersion: v.appVersion,
	})
	if err != nil {
		if apperrors.IsTransient(err) {
			v.logger.Warn("authority unreachable, staying on offline entitlement",
				slog.String("error", err.Error()),
			)
			v.recordVerification(ctx, start, false)
			return Result{Valid: false, UseOffline: true, Error: "network error"}, nil
		}
		v.recordVerification(ctx, start, false)
		return Result{Valid: false, Error: err.Error()}, err
	}

	if !resp.Valid {
		v.logger.Info("license verification rejected",
			slog.String("email", email),
			slog.String("reason", resp.Error),
		)
		v.recordVerification(ctx, start, false)
		return Result{Valid: false, Error: resp.Error}, nil
	}

	status := statusFromPlan(resp.Plan, resp.User)
	verifiedAt := v.now()
	resolvedEmail := email
	if resp.User != nil && resp.User.Email != "" {
		resolvedEmail = resp.User.Email
	}

	patch := entitlement.RecordPatch{
		Status:       &status,
		UserEmail:    &resolvedEmail,
		LastVerified: &verifiedAt,
		Features:     resp.Features,
	}
	if resp.User != nil && resp.User.Name != "" {
		patch.UserName = &resp.User.Name
	}

	if err := v.entitlements.Update(ctx, patch); err != nil {
		v.recordVerification(ctx, start, false)
		return Result{Valid: false, Error: err.Error()}, err
	}

	if !v.integrity.IsDeviceAuthorized() {
		v.integrity.MarkDeviceAuthorized()
	}

	v.logger.Info("license verified online",
		slog.String("email", resolvedEmail),
		slog.String("plan", string(status)),
	)
	v.recordVerification(ctx, start, true)

	return Result{Valid: true, Plan: string(status), UserEmail: resolvedEmail}, nil
}

// ShouldVerify reports whether a fresh online check is due: never verified,
// or the last verification is older than the offline grace period.
func (v *Verifier) ShouldVerify() bool {
	record := v.entitlements.Record()
	if record.LastVerified == nil {
		return true
	}
	return v.now().Sub(*record.LastVerified) > v.gracePeriod
}

// PerformSecurityCheck consults the integrity collaborator. An invalid
// device above the risk threshold forces the restricted status; this is a
// hard override of any previously valid license.
func (v *Verifier) PerformSecurityCheck(ctx context.Context) (SecurityCheckResult, error) {
	integrity := v.integrity.ValidateDeviceIntegrity()

	result := SecurityCheckResult{
		Valid:     integrity.Valid,
		RiskScore: integrity.RiskScore,
		Reasons:   integrity.FailedChecks,
	}

	if !integrity.Valid && integrity.RiskScore > v.riskThreshold {
		v.logger.Warn("device integrity compromised, restricting features",
			slog.Float64("risk_score", integrity.RiskScore),
			slog.Any("failed_checks", integrity.FailedChecks),
		)
		if err := v.entitlements.Restrict(ctx); err != nil {
			return result, err
		}
		result.Restricted = true
		return result, nil
	}

	if !v.integrity.IsDeviceAuthorized() {
		v.logger.Debug("device not yet authorized by the authority")
	}

	return result, nil
}

func (v *Verifier) recordVerification(ctx context.Context, start time.Time, success bool) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, v.now().Sub(start).Seconds(), success)
	}
}

// statusFromPlan maps the authority's plan string to a status, preferring
// the top-level plan and falling back to the user object.
func statusFromPlan(plan string, user *authority.UserInfo) entitlement.Status {
	if plan == "" && user != nil {
		plan = user.Plan
	}
	status := entitlement.Status(plan)
	if !status.Valid() || status == entitlement.StatusRestricted {
		// The authority never hands out restricted; anything unknown is free.
		return entitlement.StatusFree
	}
	return status
}
