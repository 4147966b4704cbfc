package model

import "time"

// ProspectStatus is where an artifact sits in the outreach lifecycle.
type ProspectStatus string

const (
	StatusDrafted  ProspectStatus = "drafted"
	StatusRendered ProspectStatus = "rendered"
	StatusApproved ProspectStatus = "approved"
	StatusPromoted ProspectStatus = "promoted"
	StatusBlocked  ProspectStatus = "blocked"
)

// ProspectArtifact is the scanner's read-only view of one on-disk artifact
// directory. Fields come from the artifact's own status file; the scanner
// never writes any of them back.
type ProspectArtifact struct {
	Dir        string         `json:"dir"`
	RunID      string         `json:"run_id"`
	Company    string         `json:"company"`
	Contact    string         `json:"contact"`
	Persona    string         `json:"persona,omitempty"`
	Account    string         `json:"account,omitempty"` // primary CRM account, if promoted
	Status     ProspectStatus `json:"status"`
	Confidence ConfidenceMode `json:"confidence_mode,omitempty"`
	Reason     string         `json:"reason,omitempty"` // gate reason when blocked
	RenderedAt time.Time      `json:"rendered_at"`
}

// RenderStatus is what the rendering service reported for one draft.
type RenderStatus string

const (
	RenderSuccess           RenderStatus = "success"
	RenderFallback          RenderStatus = "fallback"
	RenderNeedsMoreResearch RenderStatus = "needs_more_research"
	RenderError             RenderStatus = "error"
)

// RenderResult is the outcome of drafting one artifact from a brief.
type RenderResult struct {
	RunID    string       `json:"run_id"`
	Status   RenderStatus `json:"status"`
	Dir      string       `json:"dir,omitempty"`
	Variants []string     `json:"variants,omitempty"`
	Usage    TokenUsage   `json:"usage"`
	Error    string       `json:"error,omitempty"`
}
