package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

func TestCacheModeFor(t *testing.T) {
	tests := []struct {
		name         string
		dryRun       bool
		forceRefresh bool
		want         model.CacheMode
	}{
		{"default", false, false, model.CacheUse},
		{"force refresh", false, true, model.CacheRefresh},
		{"dry run", true, false, model.CacheBypass},
		{"dry run wins over refresh", true, true, model.CacheBypass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cacheModeFor(tt.dryRun, tt.forceRefresh))
		})
	}
}

func TestNewRunSummary(t *testing.T) {
	agg := &model.AggregatedResult{
		Sources: map[string]model.SourceResult{
			"edgar":      {Provider: "edgar", Origin: model.OriginFetch},
			"peopledata": {Provider: "peopledata", Origin: model.OriginCache},
		},
		Failures: map[string]model.SourceFailure{
			"jina": {Provider: "jina", Kind: model.FaultTimeout},
		},
	}

	summary := newRunSummary(agg)
	assert.Equal(t, []string{"edgar", "peopledata"}, summary.SourcesSucceeded)
	assert.Equal(t, []string{"jina"}, summary.SourcesFailed)
	assert.Equal(t, 1, summary.CacheHits)
}

func TestLoadRules_DefaultWhenUnset(t *testing.T) {
	cfg = &config.Config{}

	r, err := loadRules()
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestLoadRules_DefaultWhenMissingFile(t *testing.T) {
	cfg = &config.Config{}
	cfg.Rules.Path = t.TempDir() + "/nope.yaml"

	r, err := loadRules()
	require.NoError(t, err)
	require.NotNil(t, r)
}
