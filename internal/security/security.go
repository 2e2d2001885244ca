// Package security implements the device integrity collaborator: a
// hardware-derived secure device identifier and a risk-scored integrity
// check the verifier consults before trusting local entitlement state.
package security

import "time"

// IntegrityResult holds the outcome of a device integrity validation.
type IntegrityResult struct {
	Valid        bool      `json:"valid"`
	FailedChecks []string  `json:"failed_checks,omitempty"`
	RiskScore    float64   `json:"risk_score"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Provider is the integrity/identity collaborator the engine consumes. The
// production implementation derives everything from hardware fingerprinting;
// tests substitute fixed results.
type Provider interface {
	// ValidateDeviceIntegrity runs the integrity checks and returns a risk
	// score in [0,1]. It never returns an error; an unverifiable device is
	// expressed through failed checks and the score.
	ValidateDeviceIntegrity() IntegrityResult
	// IsDeviceAuthorized reports whether this device has been seen by the
	// authority before.
	IsDeviceAuthorized() bool
	// SecureDeviceID returns the hardware-derived identifier, or "" when no
	// secure source is available on this machine.
	SecureDeviceID() string
	// MarkDeviceAuthorized records that the authority acknowledged this
	// device. Called after the first successful verification.
	MarkDeviceAuthorized()
}
