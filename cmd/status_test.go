package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func TestPrintArtifacts(t *testing.T) {
	arts := []model.ProspectArtifact{
		{Company: "Acme Corp", Contact: "Jane Smith", Status: model.StatusDrafted,
			Confidence: model.ConfidenceHigh, RenderedAt: testNow},
		{Company: "Globex", Contact: "Sam Lee", Status: model.StatusBlocked,
			Confidence: model.ConfidenceGeneric, Reason: "VENDOR_DATA_ONLY", RenderedAt: testNow},
		{Company: "Initech", Contact: "Pat Kim", Status: model.StatusPromoted,
			Confidence: model.ConfidenceMedium, Account: "Initech LLC", RenderedAt: testNow},
	}

	var buf bytes.Buffer
	printArtifacts(&buf, arts)
	out := buf.String()

	assert.Contains(t, out, "COMPANY")
	assert.Contains(t, out, "Acme Corp")
	assert.Contains(t, out, "2026-08-25")
	assert.Contains(t, out, "VENDOR_DATA_ONLY")
	// The account lands in the note column when no gate reason is present.
	assert.Contains(t, out, "Initech LLC")
	assert.Contains(t, out, "3 artifacts")
	assert.Contains(t, out, "blocked=1")
	assert.Contains(t, out, "drafted=1")
	assert.Contains(t, out, "promoted=1")
}

func TestPrintArtifacts_Empty(t *testing.T) {
	var buf bytes.Buffer
	printArtifacts(&buf, nil)
	assert.Contains(t, buf.String(), "0 artifacts")
}

func TestPrintGrouped(t *testing.T) {
	groups := map[string][]model.ProspectArtifact{
		"Acme Corp": {
			{Company: "Acme Corp", Contact: "Jane Smith", Status: model.StatusDrafted},
			{Company: "Acme Corp", Contact: "Lou Ray", Status: model.StatusApproved},
		},
		"Globex": {
			{Company: "Globex", Contact: "Sam Lee", Status: model.StatusBlocked},
		},
	}

	var buf bytes.Buffer
	printGrouped(&buf, groups)
	out := buf.String()

	assert.Contains(t, out, "Acme Corp (2)")
	assert.Contains(t, out, "Globex (1)")
	// Keys print sorted so output is stable.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Acme Corp (2)")),
		bytes.Index(buf.Bytes(), []byte("Globex (1)")))
}

func TestPrintRuns(t *testing.T) {
	runs := []model.ResearchRun{
		{ID: "0193b2aa-1111-2222-3333-444455556666",
			Identity:  model.Identity{Company: "Acme Corp", Contact: "Jane Smith"},
			Status:    model.RunComplete,
			UpdatedAt: testNow,
			Summary:   &model.RunSummary{RenderStatus: model.RenderSuccess}},
		{ID: "0193b2bb-aaaa-bbbb-cccc-ddddeeeeffff",
			Identity:  model.Identity{Company: "Globex", Contact: "Sam Lee"},
			Status:    model.RunBlocked,
			UpdatedAt: testNow,
			Summary:   &model.RunSummary{GateReason: "THIN_RESEARCH"}},
		{ID: "short",
			Identity:  model.Identity{Company: "Initech", Contact: "Pat Kim"},
			Status:    model.RunFailed,
			UpdatedAt: testNow,
			Summary:   &model.RunSummary{Error: "all providers failed"}},
	}

	var buf bytes.Buffer
	printRuns(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "0193b2aa")
	assert.NotContains(t, out, "0193b2aa-1111")
	assert.Contains(t, out, "THIN_RESEARCH")
	assert.Contains(t, out, "all providers failed")
	assert.Contains(t, out, "2026-08-25 12:00")
	assert.Contains(t, out, string(model.RenderSuccess))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0193b2aa", truncateID("0193b2aa-1111-2222-3333-444455556666"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
	assert.Equal(t, "12345678", truncateID("12345678"))
}
