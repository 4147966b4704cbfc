package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func okBrief(mutate ...func(*model.ProspectBrief)) *model.ProspectBrief {
	b := &model.ProspectBrief{
		Status:       model.BriefOK,
		Persona:      "ops_leader",
		Tier:         "standard",
		Confidence:   model.ConfidenceHigh,
		AutomationOK: true,
	}
	for _, m := range mutate {
		m(b)
	}
	return b
}

func warn(code model.WarningCode) func(*model.ProspectBrief) {
	return func(b *model.ProspectBrief) {
		b.Warnings = append(b.Warnings, model.Warning{Code: code, Detail: "test"})
	}
}

func confidence(mode model.ConfidenceMode) func(*model.ProspectBrief) {
	return func(b *model.ProspectBrief) { b.Confidence = mode }
}

func reviewRequired(b *model.ProspectBrief) { b.ReviewRequired = true }

func regulatedPersona(b *model.ProspectBrief) { b.AutomationOK = false }

func TestEvaluateDecisionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		gate  Gate
		brief *model.ProspectBrief
		force bool
		want  model.GateDecision
	}{
		{
			name:  "high confidence clean brief passes",
			gate:  Approval,
			brief: okBrief(),
			want:  model.GateDecision{Eligible: true},
		},
		{
			name:  "low confidence blocks",
			gate:  Approval,
			brief: okBrief(confidence(model.ConfidenceLow)),
			want:  model.GateDecision{ReasonCode: "confidence_mode_LOW"},
		},
		{
			name:  "low confidence ignores force",
			gate:  Approval,
			brief: okBrief(confidence(model.ConfidenceLow)),
			force: true,
			want:  model.GateDecision{ReasonCode: "confidence_mode_LOW"},
		},
		{
			name:  "generic confidence blocks",
			gate:  Approval,
			brief: okBrief(confidence(model.ConfidenceGeneric)),
			want:  model.GateDecision{ReasonCode: "confidence_mode_GENERIC"},
		},
		{
			name:  "medium with review required blocks overridably",
			gate:  Approval,
			brief: okBrief(confidence(model.ConfidenceMedium), reviewRequired),
			want:  model.GateDecision{ReasonCode: model.ReasonReviewRequired, Overridable: true},
		},
		{
			name:  "force clears review required",
			gate:  Approval,
			brief: okBrief(confidence(model.ConfidenceMedium), reviewRequired),
			force: true,
			want:  model.GateDecision{Eligible: true},
		},
		{
			name:  "thin research blocks despite force",
			gate:  Approval,
			brief: okBrief(warn(model.WarnThinResearch)),
			force: true,
			want:  model.GateDecision{ReasonCode: "THIN_RESEARCH"},
		},
		{
			name:  "vendor data only blocks",
			gate:  Approval,
			brief: okBrief(warn(model.WarnVendorDataOnly)),
			want:  model.GateDecision{ReasonCode: "VENDOR_DATA_ONLY"},
		},
		{
			name:  "stale research does not block approval",
			gate:  Approval,
			brief: okBrief(warn(model.WarnStaleResearch)),
			want:  model.GateDecision{Eligible: true},
		},
		{
			name:  "stale research blocks batch render",
			gate:  BatchRender,
			brief: okBrief(warn(model.WarnStaleResearch)),
			want:  model.GateDecision{ReasonCode: "STALE_RESEARCH"},
		},
		{
			name:  "single contact source does not block promotion",
			gate:  Promotion,
			brief: okBrief(warn(model.WarnSingleContactSource)),
			want:  model.GateDecision{Eligible: true},
		},
		{
			name:  "single contact source blocks batch render",
			gate:  BatchRender,
			brief: okBrief(warn(model.WarnSingleContactSource)),
			want:  model.GateDecision{ReasonCode: "SINGLE_CONTACT_SOURCE"},
		},
		{
			name:  "regulated persona blocks despite force",
			gate:  Approval,
			brief: okBrief(regulatedPersona),
			force: true,
			want:  model.GateDecision{ReasonCode: model.ReasonAutomationRegulated},
		},
		{
			name:  "regulated check outranks review required",
			gate:  Approval,
			brief: okBrief(regulatedPersona, reviewRequired),
			want:  model.GateDecision{ReasonCode: model.ReasonAutomationRegulated},
		},
		{
			name:  "confidence check outranks warnings",
			gate:  Approval,
			brief: okBrief(confidence(model.ConfidenceGeneric), warn(model.WarnVendorDataOnly)),
			want:  model.GateDecision{ReasonCode: "confidence_mode_GENERIC"},
		},
		{
			name:  "warning check outranks regulated check",
			gate:  Approval,
			brief: okBrief(warn(model.WarnThinResearch), regulatedPersona),
			want:  model.GateDecision{ReasonCode: "THIN_RESEARCH"},
		},
		{
			name:  "first carried warning wins",
			gate:  BatchRender,
			brief: okBrief(warn(model.WarnVendorDataOnly), warn(model.WarnStaleResearch)),
			want:  model.GateDecision{ReasonCode: "VENDOR_DATA_ONLY"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.gate.Evaluate(tc.brief, tc.force)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, !tc.want.Eligible, got.Blocked())
		})
	}
}

func TestApprovalAndPromotionAgree(t *testing.T) {
	t.Parallel()

	briefs := []*model.ProspectBrief{
		okBrief(),
		okBrief(confidence(model.ConfidenceLow)),
		okBrief(confidence(model.ConfidenceMedium), reviewRequired),
		okBrief(warn(model.WarnThinResearch)),
		okBrief(warn(model.WarnStaleResearch)),
		okBrief(regulatedPersona),
	}

	for _, b := range briefs {
		for _, force := range []bool{false, true} {
			assert.Equal(t, Approval.Evaluate(b, force), Promotion.Evaluate(b, force),
				"the two gates differ only in side effect, never in verdict")
		}
	}
}

func TestEvaluateBatchAllPass(t *testing.T) {
	t.Parallel()

	briefs := []*model.ProspectBrief{okBrief(), okBrief(), okBrief()}

	decision, per := EvaluateBatch(briefs, false)
	require.Len(t, per, 3)
	assert.True(t, decision.Eligible)
	for _, d := range per {
		assert.True(t, d.Eligible)
	}
}

func TestEvaluateBatchBlocksOnAnyContact(t *testing.T) {
	t.Parallel()

	briefs := []*model.ProspectBrief{
		okBrief(),
		okBrief(confidence(model.ConfidenceLow)),
	}

	decision, per := EvaluateBatch(briefs, false)
	assert.False(t, decision.Eligible)
	assert.Equal(t, "confidence_mode_LOW", decision.ReasonCode)
	assert.True(t, per[0].Eligible)
	assert.False(t, per[1].Eligible)
}

func TestEvaluateBatchReviewRequiredOverridable(t *testing.T) {
	t.Parallel()

	briefs := []*model.ProspectBrief{
		okBrief(),
		okBrief(reviewRequired),
	}

	blocked, _ := EvaluateBatch(briefs, false)
	assert.Equal(t, model.GateDecision{ReasonCode: model.ReasonReviewRequired, Overridable: true}, blocked)

	forced, _ := EvaluateBatch(briefs, true)
	assert.True(t, forced.Eligible)
}

func TestEvaluateBatchRegulatedPersonaVeto(t *testing.T) {
	t.Parallel()

	// The regulated contact would block individually too, but the batch
	// verdict names the persona veto so the operator knows force will
	// never unblock this batch.
	briefs := []*model.ProspectBrief{
		okBrief(),
		okBrief(regulatedPersona),
		okBrief(),
	}

	decision, per := EvaluateBatch(briefs, true)
	assert.Equal(t, model.GateDecision{ReasonCode: model.ReasonBatchRegulated}, decision)
	assert.False(t, decision.Overridable)
	require.Len(t, per, 3)
	assert.Equal(t, model.ReasonAutomationRegulated, per[1].ReasonCode)
}

func TestEvaluateBatchVetoOutranksOtherBlocks(t *testing.T) {
	t.Parallel()

	briefs := []*model.ProspectBrief{
		okBrief(confidence(model.ConfidenceLow)),
		okBrief(regulatedPersona),
	}

	decision, _ := EvaluateBatch(briefs, false)
	assert.Equal(t, model.ReasonBatchRegulated, decision.ReasonCode)
}

func TestEvaluateBatchEmpty(t *testing.T) {
	t.Parallel()

	decision, per := EvaluateBatch(nil, false)
	assert.True(t, decision.Eligible)
	assert.Empty(t, per)
}

func TestEvaluateBatchStaleContactBlocksBatch(t *testing.T) {
	t.Parallel()

	briefs := []*model.ProspectBrief{
		okBrief(),
		okBrief(warn(model.WarnStaleResearch)),
	}

	decision, _ := EvaluateBatch(briefs, false)
	assert.Equal(t, "STALE_RESEARCH", decision.ReasonCode)
	assert.False(t, decision.Overridable)
}
