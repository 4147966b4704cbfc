// Package entity provides the durable entity cache: canonical ids, the
// alias registry, and per-provider TTL'd snapshots of provider output.
package entity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Cache wraps the store with TTL policy. Records are immutable snapshots:
// a refresh inserts a new one, expiry is evaluated lazily on read, and
// nothing is evicted behind the operator's back.
type Cache struct {
	store store.Store
	ttl   config.CacheConfig

	nowFunc func() time.Time // injectable for tests
}

// NewCache creates a Cache with the given TTL policy.
func NewCache(st store.Store, ttl config.CacheConfig) *Cache {
	return &Cache{
		store:   st,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Get returns the newest stored snapshot for (canonicalID, providerID),
// fresh or not, or nil when none exists. A snapshot that no longer parses
// is treated as a miss so the caller refetches instead of crashing the run.
func (c *Cache) Get(ctx context.Context, canonicalID, providerID string) (*model.CachedRecord, error) {
	rec, err := c.store.GetRecord(ctx, canonicalID, providerID)
	if err != nil {
		return nil, eris.Wrap(err, "entity: cache get")
	}
	if rec == nil {
		return nil, nil
	}
	if !json.Valid(rec.Payload) {
		zap.L().Warn("cache: malformed record payload, treating as miss",
			zap.String("canonical_id", canonicalID),
			zap.String("provider_id", providerID),
		)
		return nil, nil
	}
	return rec, nil
}

// Fresh returns the newest snapshot only when it is within TTL; expired or
// absent both return nil.
func (c *Cache) Fresh(ctx context.Context, canonicalID, providerID string) (*model.CachedRecord, error) {
	rec, err := c.Get(ctx, canonicalID, providerID)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.IsExpired(c.nowFunc()) {
		return nil, nil
	}
	return rec, nil
}

// IsExpired reports whether the stored snapshot for the key is past TTL.
// Absent records count as expired: there is nothing fresh to use.
func (c *Cache) IsExpired(ctx context.Context, canonicalID, providerID string) (bool, error) {
	rec, err := c.Get(ctx, canonicalID, providerID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return true, nil
	}
	return rec.IsExpired(c.nowFunc()), nil
}

// Put stores a new snapshot for (canonicalID, providerID) with the
// provider's configured TTL and returns the written record.
func (c *Cache) Put(ctx context.Context, canonicalID, providerID string, payload json.RawMessage) (*model.CachedRecord, error) {
	now := c.nowFunc().UTC()
	expiresAt := now.Add(time.Duration(c.ttl.TTLFor(providerID)) * time.Hour)

	rec := model.CachedRecord{
		CanonicalID: canonicalID,
		ProviderID:  providerID,
		Status:      model.RecordOK,
		Payload:     payload,
		FetchedAt:   now,
		ExpiresAt:   &expiresAt,
	}
	if err := c.store.PutRecord(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "entity: cache put")
	}
	return &rec, nil
}

// SeedEntry is one snapshot in a bulk cache write.
type SeedEntry struct {
	CanonicalID string
	ProviderID  string
	Payload     json.RawMessage
}

// BatchWriter is the bulk insert fast path the Postgres store provides.
// Stores without it take the sequential fallback.
type BatchWriter interface {
	SeedRecords(ctx context.Context, recs []model.CachedRecord) (int64, error)
}

// PutBatch stores snapshots for many keys under the same TTL policy as
// Put: one COPY round trip where the store supports it, sequential puts
// everywhere else. Returns the number of records written.
func (c *Cache) PutBatch(ctx context.Context, entries []SeedEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	now := c.nowFunc().UTC()
	recs := make([]model.CachedRecord, 0, len(entries))
	for _, e := range entries {
		expiresAt := now.Add(time.Duration(c.ttl.TTLFor(e.ProviderID)) * time.Hour)
		recs = append(recs, model.CachedRecord{
			CanonicalID: e.CanonicalID,
			ProviderID:  e.ProviderID,
			Status:      model.RecordOK,
			Payload:     e.Payload,
			FetchedAt:   now,
			ExpiresAt:   &expiresAt,
		})
	}

	if bw, ok := c.store.(BatchWriter); ok {
		n, err := bw.SeedRecords(ctx, recs)
		if err != nil {
			return 0, eris.Wrap(err, "entity: cache put batch")
		}
		return int(n), nil
	}
	for i, rec := range recs {
		if err := c.store.PutRecord(ctx, rec); err != nil {
			return i, eris.Wrap(err, "entity: cache put batch")
		}
	}
	return len(recs), nil
}
