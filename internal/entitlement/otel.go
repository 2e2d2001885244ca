package entitlement

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const MeterName = "entitlement-engine"

// Metrics holds the entitlement-specific OpenTelemetry metrics
type Metrics struct {
	StatusChanges    metric.Int64Counter
	Restrictions     metric.Int64Counter
	VerifyAttempts   metric.Int64Counter
	VerifySuccess    metric.Int64Counter
	VerifyFailures   metric.Int64Counter
	VerifyDuration   metric.Float64Histogram
	QuotaDecrements  metric.Int64Counter
	QuotaResets      metric.Int64Counter
	RemindersShown   metric.Int64Counter
	ReminderDismiss  metric.Int64Counter
}

// InitializeMetrics creates all entitlement metrics against the meter
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.StatusChanges, err = meter.Int64Counter(
		"entitlement_status_changes_total",
		metric.WithDescription("Total number of license status transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create status changes counter: %w", err)
	}

	m.Restrictions, err = meter.Int64Counter(
		"entitlement_restrictions_total",
		metric.WithDescription("Total number of integrity-forced restrictions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create restrictions counter: %w", err)
	}

	m.VerifyAttempts, err = meter.Int64Counter(
		"license_verification_attempts_total",
		metric.WithDescription("Total number of online verification attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification attempts counter: %w", err)
	}

	m.VerifySuccess, err = meter.Int64Counter(
		"license_verification_success_total",
		metric.WithDescription("Total number of successful online verifications"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification success counter: %w", err)
	}

	m.VerifyFailures, err = meter.Int64Counter(
		"license_verification_failures_total",
		metric.WithDescription("Total number of failed online verifications"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification failures counter: %w", err)
	}

	m.VerifyDuration, err = meter.Float64Histogram(
		"license_verification_duration_seconds",
		metric.WithDescription("Online verification duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification duration histogram: %w", err)
	}

	m.QuotaDecrements, err = meter.Int64Counter(
		"scan_quota_decrements_total",
		metric.WithDescription("Total number of free-tier scan quota decrements"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create quota decrements counter: %w", err)
	}

	m.QuotaResets, err = meter.Int64Counter(
		"scan_quota_resets_total",
		metric.WithDescription("Total number of daily scan quota resets"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create quota resets counter: %w", err)
	}

	m.RemindersShown, err = meter.Int64Counter(
		"update_reminders_shown_total",
		metric.WithDescription("Total number of update reminders surfaced"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminders shown counter: %w", err)
	}

	m.ReminderDismiss, err = meter.Int64Counter(
		"update_reminders_dismissed_total",
		metric.WithDescription("Total number of update reminders dismissed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder dismiss counter: %w", err)
	}

	return m, nil
}

// RecordStatusChange records a status transition
func (m *Metrics) RecordStatusChange(ctx context.Context, status Status) {
	m.StatusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}

// RecordRestriction records an integrity-forced restriction
func (m *Metrics) RecordRestriction(ctx context.Context) {
	m.Restrictions.Add(ctx, 1)
}

// RecordVerification records an online verification outcome
func (m *Metrics) RecordVerification(ctx context.Context, seconds float64, success bool) {
	m.VerifyAttempts.Add(ctx, 1)
	m.VerifyDuration.Record(ctx, seconds)
	if success {
		m.VerifySuccess.Add(ctx, 1)
	} else {
		m.VerifyFailures.Add(ctx, 1)
	}
}

// RecordQuotaDecrement records one consumed free-tier scan
func (m *Metrics) RecordQuotaDecrement(ctx context.Context) {
	m.QuotaDecrements.Add(ctx, 1)
}

// RecordQuotaReset records a daily rollover
func (m *Metrics) RecordQuotaReset(ctx context.Context, usedBefore int) {
	m.QuotaResets.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("scans_used", usedBefore),
	))
}

// RecordReminderShown records a surfaced update reminder
func (m *Metrics) RecordReminderShown(ctx context.Context, count int, reengagement bool) {
	m.RemindersShown.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("reminder_count", count),
		attribute.Bool("reengagement", reengagement),
	))
}

// RecordReminderDismissed records a dismissal with its window
func (m *Metrics) RecordReminderDismissed(ctx context.Context, window string) {
	m.ReminderDismiss.Add(ctx, 1, metric.WithAttributes(
		attribute.String("window", window),
	))
}
