package model

import "time"

// ContactProfile is the normalized view of the person being researched.
// Sources lists the providers that contributed any contact detail, in merge
// order; batch gating uses it to spot contacts known from one vendor only.
type ContactProfile struct {
	Name     string   `json:"name"`
	Title    string   `json:"title,omitempty"`
	Email    string   `json:"email,omitempty"`
	LinkedIn string   `json:"linkedin,omitempty"`
	Location string   `json:"location,omitempty"`
	Company  string   `json:"company"`
	Sources  []string `json:"sources,omitempty"`
}

// CompanyProfile is the normalized view of the target company.
type CompanyProfile struct {
	CanonicalID string   `json:"canonical_id"`
	Name        string   `json:"name"`
	Domain      string   `json:"domain,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	Employees   int      `json:"employees,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	Latitude    float64  `json:"latitude,omitempty"`
	Longitude   float64  `json:"longitude,omitempty"`
	Territory   string   `json:"territory,omitempty"`
	FilerID     string   `json:"filer_id,omitempty"`
	CRMID       string   `json:"crm_id,omitempty"`
	Account     string   `json:"account,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	SourceURLs  []string `json:"source_urls,omitempty"`
}

// ProspectContext is the synthesizer's output: normalized profiles plus the
// raw candidate signal list, before any relevance filtering.
type ProspectContext struct {
	Contact       ContactProfile `json:"contact"`
	Company       CompanyProfile `json:"company"`
	Signals       []Signal       `json:"signals"`
	SynthesizedAt time.Time      `json:"synthesized_at"`
}

// ConfidenceMode is the coarse classification of how much verified evidence
// backs a brief. Values are uppercase because they appear verbatim inside
// gate reason codes.
type ConfidenceMode string

const (
	ConfidenceHigh    ConfidenceMode = "HIGH"
	ConfidenceMedium  ConfidenceMode = "MEDIUM"
	ConfidenceLow     ConfidenceMode = "LOW"
	ConfidenceGeneric ConfidenceMode = "GENERIC"
)

// WarningCode names a degraded-but-not-fatal research condition.
type WarningCode string

const (
	WarnThinResearch        WarningCode = "THIN_RESEARCH"
	WarnVendorDataOnly      WarningCode = "VENDOR_DATA_ONLY"
	WarnStaleResearch       WarningCode = "STALE_RESEARCH"
	WarnSingleContactSource WarningCode = "SINGLE_CONTACT_SOURCE"
)

// Warning is an emitted degradation note. Gates match on Code; Detail is
// for the operator.
type Warning struct {
	Code   WarningCode `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

func (w Warning) String() string {
	if w.Detail == "" {
		return string(w.Code)
	}
	return string(w.Code) + ": " + w.Detail
}

// BriefStatus distinguishes a usable brief from one that asked for more
// research instead.
type BriefStatus string

const (
	BriefOK                BriefStatus = "ok"
	BriefNeedsMoreResearch BriefStatus = "needs_more_research"
)

// ProspectBrief is the synthesized, scored research result for one
// (contact, company) pair. It is recomputed fresh each run and never cached;
// only its provider inputs are.
type ProspectBrief struct {
	RunID          string         `json:"run_id"`
	Status         BriefStatus    `json:"status"`
	Contact        ContactProfile `json:"contact"`
	Company        CompanyProfile `json:"company"`
	Persona        string         `json:"persona"`
	Industry       string         `json:"industry,omitempty"`
	Tier           string         `json:"tier"`
	Signals        []Signal       `json:"signals"`
	Confidence     ConfidenceMode `json:"confidence_mode"`
	Warnings       []Warning      `json:"warnings,omitempty"`
	AutomationOK   bool           `json:"automation_allowed"`
	ReviewRequired bool           `json:"review_required"`
	AngleID        string         `json:"angle_id,omitempty"`
	OfferID        string         `json:"offer_id,omitempty"`

	// SignalsFound and SignalsRequired report how the brief cleared or
	// missed the tier minimum. Recommendations is populated only when
	// Status is needs_more_research.
	SignalsFound    int      `json:"signals_found,omitempty"`
	SignalsRequired int      `json:"signals_required,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// VerifiedSignals returns the subset of signals the relevance engine marked
// verified.
func (b ProspectBrief) VerifiedSignals() []Signal {
	var out []Signal
	for _, s := range b.Signals {
		if s.Verified {
			out = append(out, s)
		}
	}
	return out
}

// HasWarning reports whether the brief carries the given warning code.
func (b ProspectBrief) HasWarning(code WarningCode) bool {
	for _, w := range b.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// TokenUsage tracks LLM token consumption for a render.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}
