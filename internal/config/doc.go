// Package config provides centralized configuration and path management for
// the Memory Monster core daemon. Configuration is loaded from environment
// variables (MM_ prefix) merged over an optional YAML file in the per-user
// data directory; all filesystem locations are resolved in one place so no
// component ever constructs its own paths.
package config
