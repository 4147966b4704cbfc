package model

// Gate reason codes that are not warning codes. Scripts and the exit-code
// mapping match on these strings, so they never change.
const (
	ReasonAutomationRegulated = "automation_not_allowed_regulatory"
	ReasonReviewRequired      = "review_required"
	ReasonBatchRegulated      = "batch_regulated_persona"
)

// GateDecision is the outcome of one eligibility check. A blocked decision
// is a value, never an error; ReasonCode is stable and machine-parseable.
// Overridable=false stays false no matter what override flags the caller
// holds.
type GateDecision struct {
	Eligible    bool   `json:"eligible"`
	ReasonCode  string `json:"reason_code,omitempty"`
	Overridable bool   `json:"overridable"`
}

// Blocked is the readable negation for call sites that branch on denial.
func (d GateDecision) Blocked() bool { return !d.Eligible }
