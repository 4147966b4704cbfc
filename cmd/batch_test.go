package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

func writeTestCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prospects.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadProspectCSV(t *testing.T) {
	path := writeTestCSV(t, "Company,Contact,Title,Domain\n"+
		"Acme Corp,Jane Smith,VP Operations,acme.com\n"+
		"Globex,Sam Lee,,globex.example\n")

	prospects, err := readProspectCSV(path)
	require.NoError(t, err)
	require.Len(t, prospects, 2)

	assert.Equal(t, "Acme Corp", prospects[0].Company)
	assert.Equal(t, "Jane Smith", prospects[0].Contact)
	assert.Equal(t, "VP Operations", prospects[0].Title)
	assert.Equal(t, "acme.com", prospects[0].Domain)
	assert.Equal(t, "Globex", prospects[1].Company)
	assert.Empty(t, prospects[1].Title)
}

func TestReadProspectCSV_NameHeaderAndSkips(t *testing.T) {
	// Queue exports title the company column "Name"; rows missing company
	// or contact are dropped.
	path := writeTestCSV(t, "Name,Contact,Domain\n"+
		"Acme Corp,Jane Smith,acme.com\n"+
		",Orphan Contact,nobody.com\n"+
		"No Contact Inc,,nocontact.com\n")

	prospects, err := readProspectCSV(path)
	require.NoError(t, err)
	require.Len(t, prospects, 1)
	assert.Equal(t, "Acme Corp", prospects[0].Company)
}

func TestReadProspectCSV_HeaderOnly(t *testing.T) {
	path := writeTestCSV(t, "Company,Contact\n")

	prospects, err := readProspectCSV(path)
	require.NoError(t, err)
	assert.Empty(t, prospects)
}

func TestReadProspectCSV_MissingFile(t *testing.T) {
	_, err := readProspectCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestBatchExit(t *testing.T) {
	tests := []struct {
		name     string
		report   batchReport
		wantCode int // 0 means nil
	}{
		{"empty batch", batchReport{}, 0},
		{"all drafted", batchReport{Total: 3, Drafted: 3}, 0},
		{"all eligible dry run", batchReport{Total: 2}, 0},
		{"one fallback", batchReport{Total: 3, Drafted: 2, Fallback: 1}, exitFallback},
		{"one blocked", batchReport{Total: 3, Drafted: 2, Blocked: 1}, exitFallback},
		{"one failed", batchReport{Total: 3, Drafted: 2, Failed: 1}, exitFallback},
		{"mixed needs more", batchReport{Total: 3, Drafted: 1, NeedsMore: 2}, exitFallback},
		{"all needs more", batchReport{Total: 2, NeedsMore: 2}, exitNeedsResearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := batchExit(tt.report)
			if tt.wantCode == 0 {
				assert.NoError(t, err)
				return
			}
			var xe *exitError
			require.True(t, errors.As(err, &xe))
			assert.Equal(t, tt.wantCode, xe.code)
		})
	}
}

func TestSummarizeBatch(t *testing.T) {
	items := []batchEntry{
		{Prospect: notion.Prospect{Company: "Acme", Contact: "Jane"}, Outcome: outcomeDrafted, RunID: "r1",
			Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 50, Cost: 0.01}},
		{Prospect: notion.Prospect{Company: "Globex", Contact: "Sam"}, Outcome: outcomeFallback, RunID: "r2"},
		{Prospect: notion.Prospect{Company: "Initech", Contact: "Pat"}, Outcome: outcomeBlocked, Reason: "VENDOR_DATA_ONLY"},
		{Prospect: notion.Prospect{Company: "Umbrella", Contact: "Ray"}, Outcome: outcomeNeedsMore},
		{Prospect: notion.Prospect{Company: "Hooli", Contact: "Kim"}, Outcome: outcomeFailed, Reason: "all providers failed"},
	}

	report := summarizeBatch(items, model.GateDecision{Eligible: true})
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 1, report.Drafted)
	assert.Equal(t, 1, report.Fallback)
	assert.Equal(t, 1, report.Blocked)
	assert.Equal(t, 1, report.NeedsMore)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 150, report.Usage.InputTokens+report.Usage.OutputTokens)
	assert.InDelta(t, 0.01, report.Usage.Cost, 0.0001)

	require.Len(t, report.Items, 5)
	assert.Equal(t, "Initech", report.Items[2].Company)
	assert.Equal(t, "VENDOR_DATA_ONLY", report.Items[2].Reason)
}
