package model

import "time"

// RunStatus represents the current state of a research run.
type RunStatus string

const (
	RunQueued        RunStatus = "queued"
	RunResearching   RunStatus = "researching"
	RunSynthesizing  RunStatus = "synthesizing"
	RunRendering     RunStatus = "rendering"
	RunComplete      RunStatus = "complete"
	RunBlocked       RunStatus = "blocked"
	RunNeedsResearch RunStatus = "needs_research"
	RunFailed        RunStatus = "failed"
)

// ResearchRun is the durable bookkeeping row for one research invocation.
// It records what happened, never the brief itself: briefs are recomputed
// fresh from cached provider inputs on every run.
type ResearchRun struct {
	ID          string      `json:"id"`
	Identity    Identity    `json:"identity"`
	CanonicalID string      `json:"canonical_id"`
	Status      RunStatus   `json:"status"`
	Summary     *RunSummary `json:"summary,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RunSummary holds the final outcome of a run.
type RunSummary struct {
	SourcesSucceeded []string       `json:"sources_succeeded"`
	SourcesFailed    []string       `json:"sources_failed,omitempty"`
	CacheHits        int            `json:"cache_hits"`
	SignalCount      int            `json:"signal_count"`
	Confidence       ConfidenceMode `json:"confidence_mode,omitempty"`
	GateReason       string         `json:"gate_reason,omitempty"`
	RenderStatus     RenderStatus   `json:"render_status,omitempty"`
	ArtifactDir      string         `json:"artifact_dir,omitempty"`
	Usage            TokenUsage     `json:"usage"`
	Error            string         `json:"error,omitempty"`
}
