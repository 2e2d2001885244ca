// Package device produces the stable per-installation identifier everything
// else keys on: quota records, anonymous emails, authority payloads. The ID
// prefers a hardware-derived secure source and falls back to a locally
// generated one; once chosen it never changes spontaneously.
package device

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"mmcore/internal/store"
)

const deviceIDKey = "memory_monster_device_id"

// SecureSource supplies a hardware-derived device identifier, or "" when the
// machine has none. The security manager is the production implementation.
type SecureSource interface {
	SecureDeviceID() string
}

// Identity resolves and persists the installation identifier.
type Identity struct {
	kv     store.KeyValueStore
	secure SecureSource
	logger *slog.Logger
	now    func() time.Time
}

// NewIdentity creates the identity resolver. secure may be nil when no
// security collaborator is wired (tests, degraded startup).
func NewIdentity(kv store.KeyValueStore, secure SecureSource, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{
		kv:     kv,
		secure: secure,
		logger: logger,
		now:    time.Now,
	}
}

// ID returns the installation identifier. A secure hardware-derived ID wins;
// if one appears after a fallback ID was stored, the stored value migrates in
// place exactly once. Absent any secure source a generated fallback ID is
// persisted and reused forever.
func (i *Identity) ID() string {
	if i.secure != nil {
		if secureID := i.secure.SecureDeviceID(); secureID != "" {
			stored, ok := i.kv.Get(deviceIDKey)
			if !ok || stored != secureID {
				if ok {
					i.logger.Info("migrating stored device ID to secure source",
						slog.String("old_id", stored),
					)
				}
				if err := i.kv.Set(deviceIDKey, secureID); err != nil {
					i.logger.Warn("failed to persist secure device ID",
						slog.String("error", err.Error()),
					)
				}
			}
			return secureID
		}
	}

	if stored, ok := i.kv.Get(deviceIDKey); ok && stored != "" {
		return stored
	}

	generated := i.generateFallbackID()
	if err := i.kv.Set(deviceIDKey, generated); err != nil {
		i.logger.Warn("failed to persist fallback device ID",
			slog.String("error", err.Error()),
		)
	}
	i.logger.Info("generated fallback device ID",
		slog.String("device_id", generated),
	)
	return generated
}

// generateFallbackID builds an identifier from the platform tag, a timestamp
// suffix and a random suffix: mm_<platform>_<ts8>_<rand12>.
func (i *Identity) generateFallbackID() string {
	platform := strings.ToLower(runtime.GOOS + runtime.GOARCH)

	ts := fmt.Sprintf("%d", i.now().UnixMilli())
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}

	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	return fmt.Sprintf("mm_%s_%s_%s", platform, ts, random)
}

// AnonymousEmail synthesizes the device-keyed email used before a real
// account exists. Non-alphanumeric characters are stripped so the local part
// stays address-safe.
func (i *Identity) AnonymousEmail() string {
	var b strings.Builder
	for _, r := range i.ID() {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return fmt.Sprintf("anonymous_%s@memorymonster.co", b.String())
}

// IsAnonymousEmail reports whether email follows the synthesized pattern
func IsAnonymousEmail(email string) bool {
	return strings.HasPrefix(email, "anonymous_")
}
