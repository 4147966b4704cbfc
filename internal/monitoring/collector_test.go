package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

// fakeStore implements store.Store with canned runs.
type fakeStore struct {
	runs    []model.ResearchRun
	listErr error
}

func (f *fakeStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.ResearchRun, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.runs, nil
}

// Unused store methods, present to satisfy the interface.
func (f *fakeStore) CreateEntity(context.Context, model.EntityKind, string) (*model.CanonicalEntity, error) {
	return nil, nil
}
func (f *fakeStore) GetEntity(context.Context, string) (*model.CanonicalEntity, error) {
	return nil, nil
}
func (f *fakeStore) ListEntities(context.Context, store.EntityFilter) ([]model.CanonicalEntity, error) {
	return nil, nil
}
func (f *fakeStore) RegisterAlias(context.Context, model.Alias) error { return nil }
func (f *fakeStore) ResolveAlias(context.Context, model.AliasType, string) (string, error) {
	return "", nil
}
func (f *fakeStore) ListAliases(context.Context, string) ([]model.Alias, error) { return nil, nil }
func (f *fakeStore) GetRecord(context.Context, string, string) (*model.CachedRecord, error) {
	return nil, nil
}
func (f *fakeStore) PutRecord(context.Context, model.CachedRecord) error { return nil }
func (f *fakeStore) DeleteExpiredRecords(context.Context) (int, error)   { return 0, nil }
func (f *fakeStore) CreateRun(context.Context, model.Identity, string) (*model.ResearchRun, error) {
	return nil, nil
}
func (f *fakeStore) UpdateRunStatus(context.Context, string, model.RunStatus) error { return nil }
func (f *fakeStore) CompleteRun(context.Context, string, model.RunStatus, *model.RunSummary) error {
	return nil
}
func (f *fakeStore) GetRun(context.Context, string) (*model.ResearchRun, error) { return nil, nil }
func (f *fakeStore) Migrate(context.Context) error                              { return nil }
func (f *fakeStore) Close() error                                               { return nil }

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&fakeStore{}).WithNow(func() time.Time { return testNow })

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0, snap.RunsFailed)
	assert.Equal(t, 0.0, snap.RunFailRate)
	assert.Equal(t, 0.0, snap.CostUSD)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, testNow, snap.CollectedAt)
}

func TestCollector_RunMetrics(t *testing.T) {
	st := &fakeStore{
		runs: []model.ResearchRun{
			{ID: "r1", Status: model.RunComplete, CreatedAt: testNow.Add(-1 * time.Hour), Summary: &model.RunSummary{
				CacheHits:    3,
				SignalCount:  6,
				RenderStatus: model.RenderSuccess,
				Usage:        model.TokenUsage{Cost: 0.04},
			}},
			{ID: "r2", Status: model.RunComplete, CreatedAt: testNow.Add(-2 * time.Hour), Summary: &model.RunSummary{
				CacheHits:    2,
				SignalCount:  4,
				RenderStatus: model.RenderSuccess,
				Usage:        model.TokenUsage{Cost: 0.06},
			}},
			{ID: "r3", Status: model.RunFailed, CreatedAt: testNow.Add(-3 * time.Hour), Summary: &model.RunSummary{
				Error: "all providers failed",
			}},
			{ID: "r4", Status: model.RunBlocked, CreatedAt: testNow.Add(-4 * time.Hour), Summary: &model.RunSummary{
				GateReason: "LOW_CONFIDENCE",
			}},
			{ID: "r5", Status: model.RunResearching, CreatedAt: testNow.Add(-30 * time.Minute)},
			// Outside the lookback window, must not count.
			{ID: "r6", Status: model.RunFailed, CreatedAt: testNow.Add(-48 * time.Hour)},
		},
	}

	c := NewCollector(st).WithNow(func() time.Time { return testNow })
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsBlocked)
	assert.Equal(t, 1, snap.RunsInFlight)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001) // 1 failed / 3 finished
	assert.InDelta(t, 0.10, snap.CostUSD, 0.001)
	assert.Equal(t, 5, snap.CacheHits)
	assert.InDelta(t, 2.5, snap.AvgSignals, 0.001) // 10 signals over 4 summarized runs
	assert.Equal(t, 2, snap.DraftsRendered)
	assert.Equal(t, 0, snap.DraftsFallback)
}

func TestCollector_FallbackRate(t *testing.T) {
	var runs []model.ResearchRun
	for i := 0; i < 3; i++ {
		runs = append(runs, model.ResearchRun{
			ID: "ok", Status: model.RunComplete, CreatedAt: testNow.Add(-1 * time.Hour),
			Summary: &model.RunSummary{RenderStatus: model.RenderSuccess},
		})
	}
	for i := 0; i < 2; i++ {
		runs = append(runs, model.ResearchRun{
			ID: "fb", Status: model.RunComplete, CreatedAt: testNow.Add(-1 * time.Hour),
			Summary: &model.RunSummary{RenderStatus: model.RenderFallback},
		})
	}

	c := NewCollector(&fakeStore{runs: runs}).WithNow(func() time.Time { return testNow })
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.DraftsRendered)
	assert.Equal(t, 2, snap.DraftsFallback)
	assert.InDelta(t, 0.4, snap.FallbackRate, 0.001)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	st := &fakeStore{
		runs: []model.ResearchRun{
			{ID: "r1", Status: model.RunQueued, CreatedAt: testNow.Add(-1 * time.Hour)},
			{ID: "r2", Status: model.RunRendering, CreatedAt: testNow.Add(-2 * time.Hour)},
		},
	}

	c := NewCollector(st).WithNow(func() time.Time { return testNow })
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.RunsInFlight)
	assert.Equal(t, 0.0, snap.RunFailRate)
}

func TestCollector_ListError(t *testing.T) {
	st := &fakeStore{listErr: eris.New("connection refused")}

	c := NewCollector(st)
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
