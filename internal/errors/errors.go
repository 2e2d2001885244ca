package errors

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. Every public engine operation reports
// failures through one of these kinds so callers can branch on behavior
// rather than on error strings.
type Kind int

const (
	// KindUnknown is the zero value; treat as internal.
	KindUnknown Kind = iota
	// KindTransientNetwork marks verification/update-check failures where the
	// remote side was unreachable. Callers degrade to offline behavior.
	KindTransientNetwork
	// KindCorruptState marks unparseable persisted data. The affected record
	// is reset to its documented default and the operation continues.
	KindCorruptState
	// KindIntegrityViolation marks a failed device integrity check above the
	// risk threshold. This is the fail-closed path.
	KindIntegrityViolation
	// KindBestEffort marks side-effect failures (migration, usage tracking,
	// notifications) that must never block the primary operation.
	KindBestEffort
)

// String returns a stable identifier for the kind
func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindCorruptState:
		return "corrupt_state"
	case KindIntegrityViolation:
		return "integrity_violation"
	case KindBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

// EngineError carries the failure kind alongside the operation that failed.
type EngineError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause
func (e *EngineError) Unwrap() error {
	return e.Err
}

// E constructs an EngineError
func E(kind Kind, op string, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from an error chain, KindUnknown when absent.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err degrades to offline behavior
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientNetwork
}

// IsBestEffort reports whether err came from a non-blocking side effect
func IsBestEffort(err error) bool {
	return KindOf(err) == KindBestEffort
}
