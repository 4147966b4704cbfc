package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestRunStatusForRender(t *testing.T) {
	tests := []struct {
		render model.RenderStatus
		want   model.RunStatus
	}{
		{model.RenderSuccess, model.RunComplete},
		// A fallback draft still completed the run; the summary's render
		// status carries the degradation for monitoring.
		{model.RenderFallback, model.RunComplete},
		{model.RenderNeedsMoreResearch, model.RunNeedsResearch},
		{model.RenderError, model.RunFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.render), func(t *testing.T) {
			assert.Equal(t, tt.want, runStatusForRender(tt.render))
		})
	}
}

func TestDraftSummary(t *testing.T) {
	agg := &model.AggregatedResult{
		Sources: map[string]model.SourceResult{
			"edgar": {Provider: "edgar", Origin: model.OriginCache},
		},
	}
	brief := &model.ProspectBrief{
		Confidence: model.ConfidenceMedium,
		Signals:    []model.Signal{{Claim: "a"}, {Claim: "b"}, {Claim: "c"}},
	}

	summary := draftSummary(agg, brief, "review_required")
	assert.Equal(t, model.ConfidenceMedium, summary.Confidence)
	assert.Equal(t, 3, summary.SignalCount)
	assert.Equal(t, "review_required", summary.GateReason)
	assert.Equal(t, 1, summary.CacheHits)
	assert.Equal(t, []string{"edgar"}, summary.SourcesSucceeded)
}
