// Package gate decides whether automation may act on a brief. Every gate
// runs the same check order; the three gates differ only in which warnings
// hard-block them and in the side effect a pass authorizes. Evaluation is
// pure and side-effect free, so callers may re-check as often as they like.
package gate

import (
	"github.com/sells-group/outreach-cli/internal/model"
)

// Gate is one eligibility checkpoint.
type Gate struct {
	name     string
	blocking map[model.WarningCode]bool
}

func warnSet(codes ...model.WarningCode) map[model.WarningCode]bool {
	m := make(map[model.WarningCode]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// Approval authorizes marking a draft send-ready in place.
var Approval = Gate{
	name:     "approval",
	blocking: warnSet(model.WarnThinResearch, model.WarnVendorDataOnly),
}

// Promotion authorizes copying an artifact into the active-accounts
// workspace. Eligibility is identical to Approval; only the side effect
// differs.
var Promotion = Gate{
	name:     "promotion",
	blocking: warnSet(model.WarnThinResearch, model.WarnVendorDataOnly),
}

// BatchRender authorizes unattended batch drafting. Nobody reviews these
// before they render, so conditions a human approver would weigh, stale
// evidence and single-vendor contacts, block outright here.
var BatchRender = Gate{
	name: "batch_render",
	blocking: warnSet(
		model.WarnThinResearch,
		model.WarnVendorDataOnly,
		model.WarnStaleResearch,
		model.WarnSingleContactSource,
	),
}

// Name identifies the gate in logs and status files.
func (g Gate) Name() string { return g.name }

// Evaluate runs the shared check order. Force clears only the
// review-required check; it cannot manufacture confidence, erase a blocking
// warning, or relax the regulatory policy.
func (g Gate) Evaluate(brief *model.ProspectBrief, force bool) model.GateDecision {
	if brief.Confidence == model.ConfidenceLow || brief.Confidence == model.ConfidenceGeneric {
		return model.GateDecision{ReasonCode: "confidence_mode_" + string(brief.Confidence)}
	}

	// Warnings are checked in the order the brief carries them, so the
	// blocking reason is deterministic when several apply.
	for _, w := range brief.Warnings {
		if g.blocking[w.Code] {
			return model.GateDecision{ReasonCode: string(w.Code)}
		}
	}

	if !brief.AutomationOK {
		return model.GateDecision{ReasonCode: model.ReasonAutomationRegulated}
	}

	if brief.ReviewRequired && !force {
		return model.GateDecision{ReasonCode: model.ReasonReviewRequired, Overridable: true}
	}

	return model.GateDecision{Eligible: true}
}

// EvaluateBatch evaluates every brief under the batch-render gate and
// returns the batch verdict alongside each contact's own. The batch passes
// only when every contact passes, and one regulated persona anywhere vetoes
// the whole batch, even when force would have cleared that contact alone.
func EvaluateBatch(briefs []*model.ProspectBrief, force bool) (model.GateDecision, []model.GateDecision) {
	per := make([]model.GateDecision, len(briefs))
	for i, b := range briefs {
		per[i] = BatchRender.Evaluate(b, force)
	}

	for _, b := range briefs {
		if !b.AutomationOK {
			return model.GateDecision{ReasonCode: model.ReasonBatchRegulated}, per
		}
	}

	for _, d := range per {
		if !d.Eligible {
			return model.GateDecision{ReasonCode: d.ReasonCode, Overridable: d.Overridable}, per
		}
	}

	return model.GateDecision{Eligible: true}, per
}
