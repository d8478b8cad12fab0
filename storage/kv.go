// Package storage provides the durable key/value backends the persistent
// session store is built on. Every backend is safe for concurrent use.
package storage

import "context"

// KV is the host platform's durable key/value store.
type KV interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes keys. Absent keys are not an error.
	Remove(ctx context.Context, keys ...string) error
}
