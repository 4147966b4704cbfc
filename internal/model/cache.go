package model

import (
	"encoding/json"
	"time"
)

// RecordStatus is the stored outcome of the fetch that produced a record.
type RecordStatus string

const (
	RecordOK    RecordStatus = "ok"
	RecordError RecordStatus = "error"
)

// CachedRecord is an immutable snapshot of one provider's output for one
// entity. A refresh writes a new record for the (entity, provider) key;
// nothing ever patches an existing payload.
type CachedRecord struct {
	CanonicalID string          `json:"canonical_id"`
	ProviderID  string          `json:"provider_id"`
	Status      RecordStatus    `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	FetchedAt   time.Time       `json:"fetched_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// IsExpired reports whether the record is past its TTL as of now. A record
// with no expiry is expired: a missing field must read as "refetch", never
// as "trust forever".
func (r CachedRecord) IsExpired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return true
	}
	return !r.ExpiresAt.After(now)
}

// CacheMode controls how a research run consults the entity cache.
type CacheMode string

const (
	// CacheUse reads fresh records and writes fetch results back.
	CacheUse CacheMode = "use"
	// CacheRefresh skips reads so every provider refetches, but still
	// writes the results back for the next run.
	CacheRefresh CacheMode = "refresh"
	// CacheBypass neither reads nor writes; dry runs use this so they
	// leave no persistent trace.
	CacheBypass CacheMode = "bypass"
)
