// Package relevance scores a prospect context against the rule set and
// produces the brief: filtered signals, a confidence mode, the selected
// messaging angle and offer, and any degradation warnings. Scoring is pure;
// the same context and rules always yield the same brief apart from its
// created_at stamp.
package relevance

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/rules"
)

// duplicateThreshold is the token-overlap ratio above which two claims are
// considered the same fact.
const duplicateThreshold = 0.8

// Engine builds prospect briefs from synthesized contexts.
type Engine struct {
	rules   *rules.Rules
	nowFunc func() time.Time
}

// New creates an engine over the given rule set.
func New(r *rules.Rules) *Engine {
	return &Engine{rules: r, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (e *Engine) WithNow(fn func() time.Time) *Engine {
	e.nowFunc = fn
	return e
}

// BuildBrief filters and verifies the context's signals against the named
// tier, classifies confidence, and selects the messaging angle and offer.
// A context whose signals all wash out produces a needs_more_research brief
// with remediation hints instead of a best-effort thin one.
func (e *Engine) BuildBrief(agg *model.AggregatedResult, pctx *model.ProspectContext, tierID string) (*model.ProspectBrief, error) {
	if pctx == nil {
		return nil, eris.New("relevance: nil prospect context")
	}
	tier, err := e.rules.TierByID(tierID)
	if err != nil {
		return nil, err
	}

	persona := e.rules.DetectPersona(pctx.Contact.Title)

	signals := e.filterSignals(pctx.Signals, persona, pctx.Company.Industry)
	signals = collapseDuplicates(signals)
	verified := markVerified(signals, tier)

	brief := &model.ProspectBrief{
		Status:       model.BriefOK,
		Contact:      pctx.Contact,
		Company:      pctx.Company,
		Tier:         tier.ID,
		Industry:     pctx.Company.Industry,
		Signals:      signals,
		AutomationOK: persona == nil || !persona.Regulated,
		CreatedAt:    e.nowFunc().UTC(),
	}
	if persona != nil {
		brief.Persona = persona.ID
	}

	if len(signals) == 0 {
		brief.Status = model.BriefNeedsMoreResearch
		brief.Confidence = model.ConfidenceGeneric
		brief.ReviewRequired = true
		brief.SignalsFound = 0
		brief.SignalsRequired = tier.MinSignals
		brief.Recommendations = e.recommendations(agg, persona)
		return brief, nil
	}

	brief.Confidence = classify(verified, tier)
	brief.ReviewRequired = tier.ReviewRequired || brief.Confidence == model.ConfidenceMedium
	brief.SignalsFound = len(verified)
	brief.SignalsRequired = tier.MinSignals
	brief.Warnings = warnings(brief, signals, verified, tier)

	if persona != nil && len(verified) > 0 {
		brief.AngleID = e.selectAngle(persona, verified)
		if brief.AngleID != "" {
			brief.OfferID = e.selectOffer(persona, brief.AngleID)
		}
	}

	return brief, nil
}

// filterSignals keeps the signals this persona would act on: the types its
// angles reference. Industry-wide claims additionally require the company
// to sit in one of the persona's industries; a sector story about someone
// else's sector is noise.
func (e *Engine) filterSignals(signals []model.Signal, persona *rules.Persona, industry string) []model.Signal {
	if persona == nil {
		return signals
	}

	types := make(map[string]bool)
	for _, angle := range e.rules.AnglesForPersona(persona.ID) {
		for _, st := range angle.SignalTypes {
			types[st] = true
		}
	}

	industryOK := industryMatches(persona, industry)

	var out []model.Signal
	for _, s := range signals {
		if !types[s.Type] {
			continue
		}
		if s.Scope == model.ScopeIndustry && !industryOK {
			continue
		}
		out = append(out, s)
	}
	return out
}

func industryMatches(persona *rules.Persona, industry string) bool {
	if len(persona.Industries) == 0 {
		return true
	}
	ind := strings.ToLower(industry)
	if ind == "" {
		return false
	}
	for _, pi := range persona.Industries {
		if strings.Contains(ind, strings.ToLower(pi)) {
			return true
		}
	}
	return false
}

// collapseDuplicates drops near-duplicate claims. Signals are ranked
// cited-first then freshest-first before collapsing, so the survivor of a
// duplicate pair is always the one worth keeping, and the output order is
// stable for identical input.
func collapseDuplicates(signals []model.Signal) []model.Signal {
	ranked := make([]model.Signal, len(signals))
	copy(ranked, signals)
	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := ranked[i].Citability == model.Cited, ranked[j].Citability == model.Cited
		if ci != cj {
			return ci
		}
		if ranked[i].RecencyDays != ranked[j].RecencyDays {
			return ranked[i].RecencyDays < ranked[j].RecencyDays
		}
		return ranked[i].ID < ranked[j].ID
	})

	var out []model.Signal
	var kept [][]string
	for _, s := range ranked {
		tokens := claimTokens(s.Claim)
		dup := false
		for _, k := range kept {
			if jaccard(tokens, k) >= duplicateThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, tokens)
		out = append(out, s)
	}
	return out
}

func claimTokens(claim string) []string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, claim)
	return strings.Fields(clean)
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// markVerified flags signals that clear the tier bar: cited, in an allowed
// scope, and inside the recency window. Returns the verified subset.
func markVerified(signals []model.Signal, tier *rules.Tier) []model.Signal {
	var out []model.Signal
	for i := range signals {
		ok := signals[i].Citability == model.Cited &&
			tier.AllowsScope(signals[i].Scope) &&
			signals[i].RecencyDays <= tier.MaxRecencyDays
		signals[i].Verified = ok
		if ok {
			out = append(out, signals[i])
		}
	}
	return out
}

func classify(verified []model.Signal, tier *rules.Tier) model.ConfidenceMode {
	switch {
	case len(verified) == 0:
		return model.ConfidenceGeneric
	case len(verified) < tier.MinSignals:
		return model.ConfidenceLow
	}
	for _, s := range verified {
		if s.Scope == model.ScopeCompany {
			return model.ConfidenceHigh
		}
	}
	return model.ConfidenceMedium
}

func warnings(brief *model.ProspectBrief, signals, verified []model.Signal, tier *rules.Tier) []model.Warning {
	var out []model.Warning

	providers := make(map[string]bool)
	for _, s := range verified {
		providers[s.Provider] = true
	}
	if len(verified) > 0 && len(verified) == tier.MinSignals && len(providers) == 1 {
		sole := verified[0].Provider
		out = append(out, model.Warning{
			Code:   model.WarnThinResearch,
			Detail: fmt.Sprintf("%d verified signals, all from %s", len(verified), sole),
		})
	}

	vendorOnly := true
	for _, s := range signals {
		if s.SourceType != model.SourceVendorData {
			vendorOnly = false
			break
		}
	}
	if vendorOnly {
		out = append(out, model.Warning{
			Code:   model.WarnVendorDataOnly,
			Detail: "no publicly citable fact backs this brief",
		})
	}

	if len(verified) > 0 {
		newest := verified[0].RecencyDays
		for _, s := range verified[1:] {
			if s.RecencyDays < newest {
				newest = s.RecencyDays
			}
		}
		if newest > tier.MaxRecencyDays/2 {
			out = append(out, model.Warning{
				Code:   model.WarnStaleResearch,
				Detail: fmt.Sprintf("newest verified signal is %d days old (tier window %d)", newest, tier.MaxRecencyDays),
			})
		}
	}

	if len(brief.Contact.Sources) == 1 {
		out = append(out, model.Warning{
			Code:   model.WarnSingleContactSource,
			Detail: "contact details come only from " + brief.Contact.Sources[0],
		})
	}

	return out
}

// selectAngle ranks the persona's angles by how many verified signal types
// they hit, highest first, configured priority breaking ties, config order
// breaking the rest. Returns "" when nothing matches.
func (e *Engine) selectAngle(persona *rules.Persona, verified []model.Signal) string {
	types := make(map[string]bool)
	for _, s := range verified {
		types[s.Type] = true
	}

	bestID := ""
	bestCount := 0
	bestPriority := 0
	for _, angle := range e.rules.AnglesForPersona(persona.ID) {
		count := 0
		for _, st := range angle.SignalTypes {
			if types[st] {
				count++
			}
		}
		if count == 0 {
			continue
		}
		if bestID == "" || count > bestCount || (count == bestCount && angle.Priority < bestPriority) {
			bestID = angle.ID
			bestCount = count
			bestPriority = angle.Priority
		}
	}
	return bestID
}

// selectOffer picks the highest-priority persona offer compatible with the
// chosen angle.
func (e *Engine) selectOffer(persona *rules.Persona, angleID string) string {
	bestID := ""
	bestPriority := 0
	for _, offer := range e.rules.OffersForPersona(persona.ID) {
		if !offer.CompatibleWith(angleID) {
			continue
		}
		if bestID == "" || offer.Priority < bestPriority {
			bestID = offer.ID
			bestPriority = offer.Priority
		}
	}
	return bestID
}

// recommendations explains what would unblock the tier: the signal types
// the persona's angles need, refreshes for failed or cached sources.
func (e *Engine) recommendations(agg *model.AggregatedResult, persona *rules.Persona) []string {
	var recs []string

	if persona == nil {
		recs = append(recs, "confirm the contact's title; no persona matched it")
	} else {
		for _, angle := range e.rules.AnglesForPersona(persona.ID) {
			recs = append(recs, fmt.Sprintf("look for %s evidence to support the %s angle",
				strings.Join(angle.SignalTypes, " or "), angle.ID))
			if len(recs) >= 3 {
				break
			}
		}
	}

	if agg != nil && len(agg.Failures) > 0 {
		recs = append(recs, "re-run research; failed providers: "+strings.Join(agg.SourcesFailed(), ", "))
	}
	if agg != nil && agg.CacheHits() > 0 {
		recs = append(recs, "refresh cached sources with --force-refresh")
	}
	return recs
}
