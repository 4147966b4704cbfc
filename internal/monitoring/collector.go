// Package monitoring watches run bookkeeping for failure spikes, template
// fallback pileups, and spend overruns, and pushes alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health over the
// lookback window.
type MetricsSnapshot struct {
	// Run outcomes within the window.
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsBlocked   int     `json:"runs_blocked"`
	RunsNeedsMore int     `json:"runs_needs_more"`
	RunsInFlight  int     `json:"runs_in_flight"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Draft outcomes for runs that reached rendering.
	DraftsRendered int     `json:"drafts_rendered"`
	DraftsFallback int     `json:"drafts_fallback"`
	FallbackRate   float64 `json:"fallback_rate"`

	// Aggregates from run summaries.
	CostUSD    float64 `json:"cost_usd"`
	CacheHits  int     `json:"cache_hits"`
	AvgSignals float64 `json:"avg_signals"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers run metrics from the store.
type Collector struct {
	store store.Store

	nowFunc func() time.Time // injectable for tests
}

// NewCollector creates a metrics collector over the store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (c *Collector) WithNow(fn func() time.Time) *Collector {
	c.nowFunc = fn
	return c
}

// Collect gathers a snapshot over the given lookback window. Blocked and
// needs-more runs are counted but stay out of the failure rate: the gate
// doing its job is not a malfunction.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.nowFunc().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalSignals int
	var summarized int
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++

		switch r.Status {
		case model.RunComplete:
			snap.RunsComplete++
		case model.RunFailed:
			snap.RunsFailed++
		case model.RunBlocked:
			snap.RunsBlocked++
		case model.RunNeedsResearch:
			snap.RunsNeedsMore++
		default:
			snap.RunsInFlight++
		}

		if r.Summary == nil {
			continue
		}
		summarized++
		snap.CostUSD += r.Summary.Usage.Cost
		snap.CacheHits += r.Summary.CacheHits
		totalSignals += r.Summary.SignalCount

		switch r.Summary.RenderStatus {
		case model.RenderSuccess:
			snap.DraftsRendered++
		case model.RenderFallback:
			snap.DraftsFallback++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if drafts := snap.DraftsRendered + snap.DraftsFallback; drafts > 0 {
		snap.FallbackRate = float64(snap.DraftsFallback) / float64(drafts)
	}
	if summarized > 0 {
		snap.AvgSignals = float64(totalSignals) / float64(summarized)
	}

	return snap, nil
}
