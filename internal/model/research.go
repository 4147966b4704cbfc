package model

import (
	"encoding/json"
	"sort"
	"time"
)

// SourceOrigin records whether a contributing provider payload came from
// the entity cache or a live fetch this run.
type SourceOrigin string

const (
	OriginCache SourceOrigin = "cache"
	OriginFetch SourceOrigin = "fetch"
)

// FaultKind classifies provider failures. Adapters map their transport
// errors onto these; the orchestrator records them and moves on.
type FaultKind string

const (
	FaultAuth      FaultKind = "auth"
	FaultRateLimit FaultKind = "rate_limit"
	FaultNotFound  FaultKind = "not_found"
	FaultTimeout   FaultKind = "timeout"
	FaultOther     FaultKind = "other"
)

// SourceResult is one provider's contribution to an aggregate.
type SourceResult struct {
	Provider  string          `json:"provider"`
	Origin    SourceOrigin    `json:"origin"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// SourceFailure is one provider's recorded failure for this run. Failures
// are data, not errors: a failed provider never aborts its siblings.
type SourceFailure struct {
	Provider string    `json:"provider"`
	Kind     FaultKind `json:"kind"`
	Message  string    `json:"message"`
}

// AggregatedResult is the merged output of one orchestration call. Sources
// and Failures are keyed by provider id, so the aggregate is independent of
// completion order.
type AggregatedResult struct {
	CanonicalID string                   `json:"canonical_id"`
	Identity    Identity                 `json:"identity"`
	Sources     map[string]SourceResult  `json:"sources"`
	Failures    map[string]SourceFailure `json:"failures"`
	StartedAt   time.Time                `json:"started_at"`
	DurationMS  int64                    `json:"duration_ms"`
}

// SourcesSucceeded lists contributing provider ids in sorted order.
func (r AggregatedResult) SourcesSucceeded() []string {
	ids := make([]string, 0, len(r.Sources))
	for id := range r.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourcesFailed lists failed provider ids in sorted order.
func (r AggregatedResult) SourcesFailed() []string {
	ids := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether no provider contributed data. An empty aggregate is
// a valid "no sources succeeded" outcome, not an error.
func (r AggregatedResult) Empty() bool {
	return len(r.Sources) == 0
}

// CacheHits counts contributing sources served from cache.
func (r AggregatedResult) CacheHits() int {
	n := 0
	for _, s := range r.Sources {
		if s.Origin == OriginCache {
			n++
		}
	}
	return n
}
