package security

import (
	"log/slog"
	"time"

	"mmcore/internal/store"
)

const authorizedKey = "memory_monster_device_authorized"

// Weights applied per failed integrity check when computing the risk score.
const (
	riskFingerprintDrift = 0.6
	riskMissingHardware  = 0.3
	riskNoIdentity       = 0.2
)

// Manager is the production Provider implementation. It derives the secure
// device ID from the hardware fingerprint and scores integrity by comparing
// the current fingerprint against the one recorded at first authorization.
type Manager struct {
	fingerprints *FingerprintManager
	kv           store.KeyValueStore
	logger       *slog.Logger
}

const fingerprintKey = "memory_monster_device_fingerprint"

// NewManager creates the fingerprint-backed security manager
func NewManager(kv store.KeyValueStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		fingerprints: NewFingerprintManager(),
		kv:           kv,
		logger:       logger,
	}
}

// SecureDeviceID returns the hardware fingerprint, or "" when the machine
// exposes nothing stable to derive one from.
func (m *Manager) SecureDeviceID() string {
	fp, err := m.fingerprints.GenerateFingerprint()
	if err != nil {
		m.logger.Warn("secure device ID unavailable",
			slog.String("error", err.Error()),
		)
		return ""
	}
	if fp.MACAddress == "unknown-mac" && fp.Hostname == "unknown-host" {
		// Nothing hardware-derived went into the hash; treat as no source.
		return ""
	}
	return "mmsec_" + fp.Fingerprint[:32]
}

// ValidateDeviceIntegrity runs the integrity checks and computes a risk
// score. The first successful validation records the fingerprint; later runs
// compare against it so a copied data directory scores high.
func (m *Manager) ValidateDeviceIntegrity() IntegrityResult {
	result := IntegrityResult{Valid: true, CheckedAt: time.Now()}

	fp, err := m.fingerprints.GenerateFingerprint()
	if err != nil {
		result.Valid = false
		result.FailedChecks = append(result.FailedChecks, "fingerprint_generation")
		result.RiskScore = riskNoIdentity
		return result
	}

	if fp.MACAddress == "unknown-mac" {
		result.FailedChecks = append(result.FailedChecks, "hardware_identity")
		result.RiskScore += riskMissingHardware
	}

	stored, ok := m.kv.Get(fingerprintKey)
	if !ok {
		if err := m.kv.Set(fingerprintKey, fp.Fingerprint); err != nil {
			m.logger.Warn("failed to record device fingerprint",
				slog.String("error", err.Error()),
			)
		}
	} else if stored != fp.Fingerprint {
		result.FailedChecks = append(result.FailedChecks, "fingerprint_mismatch")
		result.RiskScore += riskFingerprintDrift
	}

	if result.RiskScore > 1 {
		result.RiskScore = 1
	}
	result.Valid = len(result.FailedChecks) == 0

	m.logger.Debug("device integrity validated",
		slog.Bool("valid", result.Valid),
		slog.Float64("risk_score", result.RiskScore),
		slog.Int("failed_checks", len(result.FailedChecks)),
	)

	return result
}

// IsDeviceAuthorized reports whether the authority has acknowledged this
// device before. The flag is set after the first successful verification.
func (m *Manager) IsDeviceAuthorized() bool {
	_, ok := m.kv.Get(authorizedKey)
	return ok
}

// MarkDeviceAuthorized records the authority acknowledgement
func (m *Manager) MarkDeviceAuthorized() {
	if err := m.kv.Set(authorizedKey, time.Now().Format(time.RFC3339)); err != nil {
		m.logger.Warn("failed to persist device authorization",
			slog.String("error", err.Error()),
		)
	}
}
