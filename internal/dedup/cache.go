// Package dedup provides a time-windowed "already handled" cache keyed by an identifier.
//
// The same abstraction absorbs duplicate call-completion deliveries and keeps
// verification sends idempotent per lead; only the window differs.
package dedup

import (
	"context"
	"time"
)

// Cache records keys for a fixed window.
type Cache interface {
	// MarkIfAbsent records key and returns true when it was not already recorded
	// within the window. A false return means the caller is looking at a duplicate.
	MarkIfAbsent(ctx context.Context, key string) (bool, error)
	// Forget drops key so the next MarkIfAbsent succeeds.
	Forget(ctx context.Context, key string) error
	// Window reports the configured TTL.
	Window() time.Duration
}

// Key joins a namespace and an identifier.
func Key(namespace, id string) string {
	return namespace + ":" + id
}
