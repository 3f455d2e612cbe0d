// Package common provides shared utilities for b3cast
package common

import "time"

// Freshness TTLs for cached components
const (
	FreshnessCatalog         = 24 * time.Hour  // exchange listings change rarely
	FreshnessFallbackCatalog = 5 * time.Minute // retry the live catalog soon after a failure
	FreshnessProbe           = 6 * time.Hour   // one probe per symbol per session
)

// IsFresh returns true if fetchedAt is within ttl of now.
func IsFresh(fetchedAt, now time.Time, ttl time.Duration) bool {
	if fetchedAt.IsZero() || ttl <= 0 {
		return false
	}
	return now.Sub(fetchedAt) < ttl
}
