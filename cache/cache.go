// Package cache memoizes impact projections.
//
// Impact calculations are pure functions of loan state and modification
// parameters, so identical previews can be served from cache. Values are
// stored as serialized JSON; keys fold the loan identity, its last
// update time and the full parameter payload into one digest.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores serialized projection results.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string) error
}

// Key derives a cache key from the loan identity plus everything the
// projection depends on. Any change to loan state must change updatedAt,
// otherwise stale projections would be served.
func Key(loanID string, updatedAt time.Time, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(loanID))
	h.Write([]byte(updatedAt.UTC().Format(time.RFC3339Nano)))
	for _, part := range parts {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	return "impact:" + hex.EncodeToString(h.Sum(nil))[:32]
}
