// Package cache defines the key-value port fronting the governance store.
//
// Cached entries are tenant settings, policy sets and budget limits. Every
// entry can be rebuilt from the store, so a lost or failed cache only costs
// latency.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get reports ok=false on a miss. A non-nil error means the backend
	// failed and the caller should load from the store.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value. Backends with bucket-level expiry ignore ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key joins key segments with ':' so namespaces never collide.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
