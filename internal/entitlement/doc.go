// Package entitlement is the single source of truth for what an installation
// may do: it owns the persisted LicenseRecord, partitions features into the
// always-free and pro-only sets, and resolves access with a closed-world
// default-deny. Status only ever changes through verification, simulation, or
// an explicit reset; the restricted status set by a failed integrity check
// overrides any previously valid license.
package entitlement
