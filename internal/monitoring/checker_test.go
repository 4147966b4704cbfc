package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// breachedStore returns five finished runs, two of them failed, putting the
// failure rate at 40%.
func breachedStore() *fakeStore {
	runs := make([]model.ResearchRun, 0, 5)
	for i := 0; i < 3; i++ {
		runs = append(runs, model.ResearchRun{ID: "ok", Status: model.RunComplete, CreatedAt: testNow.Add(-time.Hour)})
	}
	for i := 0; i < 2; i++ {
		runs = append(runs, model.ResearchRun{ID: "failed", Status: model.RunFailed, CreatedAt: testNow.Add(-time.Hour)})
	}
	return &fakeStore{runs: runs}
}

func TestCheckerSweepDeliversBreaches(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{
		FailureRateThreshold: 0.2,
		LookbackWindowHours:  24,
		WebhookURL:           srv.URL,
	}
	collector := NewCollector(breachedStore()).WithNow(func() time.Time { return testNow })
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	triggered, sent := checker.sweep(context.Background())
	assert.Equal(t, 1, triggered)
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), posts.Load())
}

func TestCheckerSweepQuietWhenClear(t *testing.T) {
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.9, LookbackWindowHours: 24}
	collector := NewCollector(breachedStore()).WithNow(func() time.Time { return testNow })
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	triggered, sent := checker.sweep(context.Background())
	assert.Zero(t, triggered)
	assert.Zero(t, sent)
}

func TestCheckerSweepTracksCollectFailures(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	collector := NewCollector(&fakeStore{listErr: eris.New("connection refused")})
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	for i := 0; i < collectFailEscalation; i++ {
		triggered, sent := checker.sweep(context.Background())
		assert.Zero(t, triggered)
		assert.Zero(t, sent)
	}
	assert.Equal(t, collectFailEscalation, checker.failStreak)

	// A healthy sweep clears the streak.
	checker.collector = NewCollector(&fakeStore{}).WithNow(func() time.Time { return testNow })
	checker.sweep(context.Background())
	assert.Zero(t, checker.failStreak)
}

func TestCheckerRunSweepsImmediately(t *testing.T) {
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hit <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	// The hour-long interval means only the startup sweep can deliver
	// within the test window.
	cfg := config.MonitoringConfig{
		FailureRateThreshold: 0.2,
		LookbackWindowHours:  24,
		CheckIntervalSecs:    3600,
		WebhookURL:           srv.URL,
	}
	collector := NewCollector(breachedStore()).WithNow(func() time.Time { return testNow })
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatal("no webhook delivery from the startup sweep")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestCheckerDefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeStore{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, 5*time.Minute, checker.interval())

	checker = NewChecker(NewCollector(&fakeStore{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{CheckIntervalSecs: 30})
	assert.Equal(t, 30*time.Second, checker.interval())
}
