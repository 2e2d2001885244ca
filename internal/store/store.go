// Package store implements the durable per-installation key/value storage the
// engine persists all of its records through. The contract mirrors what the
// renderer-side storage offered: string keys, string values, absence is not
// an error, and malformed persisted data never propagates as a failure.
package store

// KeyValueStore is the storage collaborator every engine component writes
// through. Implementations must tolerate missing keys and corrupt backing
// data without returning errors from Get.
type KeyValueStore interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) (string, bool)
	// Set stores the value under key, overwriting any previous value.
	Set(key, value string) error
	// Remove deletes the key. Removing an absent key is a no-op.
	Remove(key string) error
}
