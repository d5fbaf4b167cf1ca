// Package kv provides the opaque string key-value store the contact directory
// persists through. Implementations exist for memory (tests), Redis, and
// Postgres.
package kv

import "context"

// Store is a minimal string key-value store. Get reports ok=false for a
// missing key rather than an error, mirroring a null read.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
